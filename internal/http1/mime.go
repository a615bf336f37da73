package http1

import "path"

// DefaultContentType is served for names with no known extension.
const DefaultContentType = "text/plain; charset=utf-8"

// HTMLContentType is used for generated pages.
const HTMLContentType = "text/html; charset=utf-8"

var contentTypes = map[string]string{
	".html": HTMLContentType,
	".htm":  HTMLContentType,
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".png":  "image/png",
	".css":  "text/css",
	".au":   "audio/basic",
	".wav":  "audio/wav",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".qt":   "video/quicktime",
	".mpeg": "video/mpeg",
	".mpe":  "video/mpeg",
	".vrml": "model/vrml",
	".wrl":  "model/vrml",
	".midi": "audio/midi",
	".mid":  "audio/midi",
	".mp3":  "audio/mpeg",
	".ogg":  "application/ogg",
	".pac":  "application/x-ns-proxy-autoconfig",
}

// ContentType maps a file name to its MIME type by extension. Extensions
// match case-sensitively, so "X.HTML" falls back to DefaultContentType.
func ContentType(name string) string {
	if ct, ok := contentTypes[path.Ext(name)]; ok {
		return ct
	}
	return DefaultContentType
}
