package notify

import (
	"html"
	"mime"
	"net/url"
	"path"
	"strings"
)

const didlTemplate = `<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" ` +
	`xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" ` +
	`xmlns:r="urn:schemas-rinconnetworks-com:metadata-1-0/" ` +
	`xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/">` +
	`<item id="notification" parentID="-1" restricted="true">` +
	`<dc:title>{title}</dc:title>` +
	`<upnp:class>object.item.audioItem.musicTrack</upnp:class>` +
	`<res protocolInfo="http-get:*:{mime}:*">{uri}</res>` +
	`</item></DIDL-Lite>`

// Metadata builds the DIDL-Lite document for a notification URI. The
// document is plain XML; the action envelope escapes it for transport.
func Metadata(uri, title string) string {
	if title == "" {
		title = "Notification"
	}
	r := strings.NewReplacer(
		"{title}", html.EscapeString(title),
		"{mime}", mimeType(uri),
		"{uri}", html.EscapeString(uri),
	)
	return r.Replace(didlTemplate)
}

func mimeType(uri string) string {
	ext := ""
	if u, err := url.Parse(uri); err == nil {
		ext = path.Ext(u.Path)
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "audio/") {
		return t
	}
	return "audio/mpeg"
}
