//
//  Copyright © Manetu Inc. All rights reserved.
//

package cluster

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/manetu/sqlsecurity/pkg/common"
	"github.com/pkg/errors"
)

// ResponseError is a non-2xx answer from the cluster.
type ResponseError struct {
	Method     string
	Path       string
	StatusCode int
	// Type and Reason come from the error body; Reason falls back to the raw
	// body when it is not the usual error document.
	Type   string
	Reason string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s [%s]", e.Method, e.Path, e.StatusCode, e.Type, e.Reason)
}

type errorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// unknownColumnMarker prefixes the column name in the reason of a query
// that references a column the caller cannot see.
const unknownColumnMarker = "Unknown column ["

func newResponseError(method, path string, status int, body []byte) error {
	re := &ResponseError{Method: method, Path: path, StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Reason != "" {
		re.Type = eb.Error.Type
		re.Reason = eb.Error.Reason
	} else {
		re.Reason = strings.TrimSpace(string(body))
	}

	kind := common.KindUnexpected
	switch {
	case status == http.StatusForbidden:
		kind = common.KindForbidden
	case status == http.StatusBadRequest && strings.Contains(re.Reason, unknownColumnMarker):
		kind = common.KindUnknownColumn
	}
	return common.WrapError(kind, re, "cluster request failed")
}

// AsResponseError extracts the [ResponseError] from err's chain.
func AsResponseError(err error) (*ResponseError, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsForbidden reports whether err is an access denied response.
func IsForbidden(err error) bool {
	re, ok := AsResponseError(err)
	return ok && re.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether err is a missing resource response.
func IsNotFound(err error) bool {
	re, ok := AsResponseError(err)
	return ok && re.StatusCode == http.StatusNotFound
}

// IsUnknownColumn reports whether err rejects a query because column is not
// visible to the caller.
func IsUnknownColumn(err error, column string) bool {
	re, ok := AsResponseError(err)
	return ok && re.StatusCode == http.StatusBadRequest &&
		strings.Contains(re.Reason, unknownColumnMarker+column+"]")
}
