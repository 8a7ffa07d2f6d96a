package main

import (
	"net/url"
	"strings"
)

const defaultAttachmentName = "image"

// extractAttachments keeps the image files and makes their private URLs fetchable
// by appending the bot token. Order is preserved; nothing is deduplicated.
func extractAttachments(files []FileRef, token string) []AttachmentRef {
	var out []AttachmentRef
	for _, f := range files {
		if !strings.HasPrefix(f.MimeType, "image/") {
			continue
		}
		if f.PrivateURL == "" {
			Debug("Skipping image %q with no private URL", f.DisplayName)
			continue
		}
		u, err := url.Parse(f.PrivateURL)
		if err != nil {
			Warn("Skipping image %q with unparseable URL: %v", f.DisplayName, err)
			continue
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()

		name := f.DisplayName
		if name == "" {
			name = defaultAttachmentName
		}
		out = append(out, AttachmentRef{URL: u.String(), Filename: name})
	}
	return out
}
