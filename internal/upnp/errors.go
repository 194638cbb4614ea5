package upnp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownAction is returned for a service path or action missing from the catalog.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMissingArgument is returned before sending when a declared input is absent.
	ErrMissingArgument = errors.New("missing argument")
	// ErrUnexpectedResponse is returned for a malformed or mismatched success body.
	ErrUnexpectedResponse = errors.New("unexpected response")
	// ErrMissingResponseArgument is returned when a declared output is absent from the response.
	ErrMissingResponseArgument = errors.New("missing response argument")
)

// Fault is a decoded UPnP error returned by a player.
type Fault struct {
	HTTPStatus int
	Code       string
	Message    string
	Service    string
	Action     string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s.%s failed: UPnP error %s (%s), HTTP %d", f.Service, f.Action, f.Code, f.Message, f.HTTPStatus)
}

var genericErrors = map[string]string{
	"401": "Invalid Action",
	"402": "Invalid Args",
	"404": "Invalid Var",
	"501": "Action Failed",
	"600": "Argument Value Invalid",
	"601": "Argument Value Out of Range",
	"602": "Optional Action Not Implemented",
	"603": "Out of Memory",
	"604": "Human Intervention Required",
	"605": "String Argument Too Long",
	"606": "Action Not Authorized",
	"607": "Signature Failure",
	"608": "Signature Missing",
	"609": "Not Encrypted",
	"610": "Invalid Sequence",
	"611": "Invalid Control URL",
	"612": "No Such Session",
}

// serviceErrors is keyed by upper-cased service id.
var serviceErrors = map[string]map[string]string{
	"AVTRANSPORT": {
		"701": "Transition not available",
		"702": "No contents",
		"703": "Read error",
		"704": "Format not supported for playback",
		"705": "Transport is locked",
		"706": "Write error",
		"707": "Media is protected or not writeable",
		"708": "Format not supported for recording",
		"709": "Media is full",
		"710": "Seek mode not supported",
		"711": "Illegal seek target",
		"712": "Play mode not supported",
		"713": "Record quality not supported",
		"714": "Illegal MIME-Type",
		"715": "Content 'BUSY'",
		"716": "Resource not found",
		"717": "Play speed not supported",
		"718": "Invalid InstanceID",
		"737": "No DNS Server",
		"738": "Bad Domain Name",
		"739": "Server Error",
		"800": "Command not supported or player is not a group coordinator",
	},
	"RENDERINGCONTROL": {
		"701": "Invalid Name",
		"702": "Invalid InstanceID",
	},
	"CONTENTDIRECTORY": {
		"701": "No such object",
		"702": "Invalid CurrentTagValue",
		"703": "Invalid NewTagValue",
		"704": "Required tag",
		"705": "Read only tag",
		"706": "Parameter Mismatch",
		"708": "Unsupported or invalid search criteria",
		"709": "Unsupported or invalid sort criteria",
		"710": "No such container",
		"711": "Restricted object",
		"712": "Bad metadata",
		"713": "Restricted parent object",
		"714": "No such source resource",
		"715": "Resource access denied",
		"716": "Transfer busy",
		"717": "No such file transfer",
		"718": "No such destination resource",
		"719": "Destination resource access denied",
		"720": "Cannot process the request",
	},
}

// ErrorMessage resolves a UPnP error code for a service, falling back to the
// generic table.
func ErrorMessage(service, code string) string {
	if table, ok := serviceErrors[strings.ToUpper(service)]; ok {
		if msg, ok := table[code]; ok {
			return msg
		}
	}
	if msg, ok := genericErrors[code]; ok {
		return msg
	}
	return "Unknown error"
}

func parseFault(body []byte, status int, service, action string) *Fault {
	code := ""
	s := string(body)
	if start := strings.Index(s, "<errorCode>"); start >= 0 {
		rest := s[start+len("<errorCode>"):]
		if end := strings.Index(rest, "</errorCode>"); end >= 0 {
			code = strings.TrimSpace(rest[:end])
		}
	}
	return &Fault{
		HTTPStatus: status,
		Code:       code,
		Message:    ErrorMessage(service, code),
		Service:    service,
		Action:     action,
	}
}
