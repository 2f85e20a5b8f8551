package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"tgbroadcast/internal/broadcast"
	logx "tgbroadcast/pkg/logx"
)

const missingParams = "Missing required parameters: token or message"

// BroadcastRequest is read from the query string (GET) or from a JSON or
// form body (POST). POST falls back to the query string for absent fields.
type BroadcastRequest struct {
	Token     string `form:"token" json:"token" validate:"required"`
	Message   string `form:"message" json:"message" validate:"required"`
	ParseMode string `form:"parse_mode" json:"parse_mode"`
}

func (h *handler) bind(c *gin.Context) (BroadcastRequest, error) {
	var req BroadcastRequest
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		if err := c.ShouldBind(&req); err != nil {
			return req, err
		}
	}
	if req.Token == "" {
		req.Token = c.Query("token")
	}
	if req.Message == "" {
		req.Message = c.Query("message")
	}
	if req.ParseMode == "" {
		req.ParseMode = c.Query("parse_mode")
	}
	return req, h.validate.Struct(req)
}

func (h *handler) broadcast(c *gin.Context) {
	req, err := h.bind(c)
	if err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			h.fail(c, http.StatusBadRequest, missingParams, "")
			return
		}
		h.fail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	mode, err := broadcast.ParseParseMode(req.ParseMode)
	if err != nil {
		h.fail(c, http.StatusBadRequest, inputMessage(err), "")
		return
	}

	rep, err := h.runner.Run(c.Request.Context(), broadcast.Request{
		Token:     req.Token,
		Message:   req.Message,
		ParseMode: mode,
		Origin:    "http",
	})
	if err != nil {
		code, msg, details := classify(err)
		if code >= http.StatusInternalServerError {
			h.log.Error("broadcast request failed", logx.Err(err))
		}
		h.fail(c, code, msg, details)
		return
	}
	h.reply(c, http.StatusOK, Envelope{Status: statusSuccess, Data: rep})
}

// classify maps a coordinator error to status code, message and details.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, broadcast.ErrInvalidInput):
		return http.StatusBadRequest, inputMessage(err), ""
	case errors.Is(err, broadcast.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid bot token", ""
	case errors.Is(err, broadcast.ErrProcessing):
		details := strings.TrimPrefix(err.Error(), broadcast.ErrProcessing.Error()+": ")
		return http.StatusInternalServerError, "Broadcast processing failed", details
	default:
		return http.StatusInternalServerError, "Internal server error", err.Error()
	}
}

// inputMessage turns "invalid input: missing x" into "Missing x".
func inputMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), broadcast.ErrInvalidInput.Error()+": ")
	r, n := utf8.DecodeRuneInString(msg)
	if n == 0 {
		return missingParams
	}
	return string(unicode.ToUpper(r)) + msg[n:]
}

func (h *handler) info(c *gin.Context) {
	h.reply(c, http.StatusOK, Envelope{
		Status:  statusSuccess,
		Message: "Telegram Broadcast API",
		Endpoints: map[string]string{
			"broadcast":        "/api/broadcast",
			"membership_check": "/api/check",
		},
		Usage: map[string]string{
			"broadcast":        "Send a message to all bot users",
			"membership_check": "Check user membership in groups/channels",
		},
	})
}

func (h *handler) healthz(c *gin.Context) {
	data := map[string]any{"status": "ok"}
	if h.health != nil {
		for k, v := range h.health() {
			data[k] = v
		}
	}
	h.reply(c, http.StatusOK, Envelope{Status: statusSuccess, Data: data})
}
