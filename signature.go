package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

const signatureMaxAge = 300 * time.Second

// verifySignature checks a Slack v0 request signature against the signing secret.
// Requests whose timestamp is more than five minutes from now are rejected.
func verifySignature(body []byte, timestamp, signature, secret string, now time.Time) bool {
	if timestamp == "" || signature == "" || secret == "" {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > signatureMaxAge || age < -signatureMaxAge {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

func verifyRequest(body []byte, headers http.Header, secret string, now time.Time) bool {
	return verifySignature(body, headers.Get(headerTimestamp), headers.Get(headerSignature), secret, now)
}
