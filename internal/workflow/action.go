package workflow

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/rbxdash/admin-relay/internal/ratelimit"
)

// InferAction picks the rate-limit class of a proxied request from its method and path.
func InferAction(method, requestPath string, header http.Header) ratelimit.Action {
	method = strings.ToUpper(method)
	clean := strings.ToLower(path.Clean("/" + requestPath))

	switch method {
	case http.MethodPost:
		if path.Base(clean) == "login" {
			return ratelimit.ActionLogin
		}
		if isMultipart(header) && strings.Contains(clean, "upload") {
			return ratelimit.ActionUpload
		}
		return ratelimit.ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ratelimit.ActionUpdate
	case http.MethodDelete:
		return ratelimit.ActionDelete
	default:
		return ratelimit.ActionGeneric
	}
}

func isMultipart(header http.Header) bool {
	if header == nil {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
