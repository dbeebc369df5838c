//
//  Copyright © Manetu Inc. All rights reserved.
//

package fakecluster

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// apiError is an error answered with the cluster's error document.
type apiError struct {
	status int
	typ    string
	reason string
}

func newAPIError(status int, typ, reason string) *apiError {
	return &apiError{status: status, typ: typ, reason: reason}
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.status, e.typ, e.reason)
}

func unauthorized(action, principal string) *apiError {
	return newAPIError(http.StatusForbidden, "security_exception",
		fmt.Sprintf("action [%s] is unauthorized for user [%s]", action, principal))
}

type errorDetail struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type errorDocument struct {
	Error  errorDetail `json:"error"`
	Status int         `json:"status"`
}

// errorHandler renders every failure as an error document.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var ae *apiError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ae):
	case errors.As(err, &he):
		ae = newAPIError(he.Code, "http_exception", fmt.Sprint(he.Message))
	default:
		ae = newAPIError(http.StatusInternalServerError, "exception", err.Error())
	}

	if ae.status == http.StatusUnauthorized {
		c.Response().Header().Set("WWW-Authenticate", `Basic realm="security" charset="UTF-8"`)
	}
	_ = c.JSON(ae.status, errorDocument{
		Error:  errorDetail{Type: ae.typ, Reason: ae.reason},
		Status: ae.status,
	})
}
