// Package fakeapi is an in-process Telegram Bot API used by driver tests.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Call is one request received by the server, with every parameter as a string.
type Call struct {
	Token  string
	Method string
	Params map[string]string
}

// Server answers getMe, deleteWebhook, getUpdates and sendMessage.
type Server struct {
	*httptest.Server

	// GoodToken is the only token getMe accepts.
	GoodToken string
	// Updates is returned verbatim as the getUpdates result.
	Updates []map[string]any
	// Blocked chat ids fail sendMessage with 403.
	Blocked map[string]bool

	mu    sync.Mutex
	calls []Call
}

func New(goodToken string) *Server {
	s := &Server{GoodToken: goodToken, Blocked: map[string]bool{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// MessageUpdate builds a getUpdates entry for a private message from userID.
func MessageUpdate(updateID int, userID int64) map[string]any {
	return map[string]any{
		"update_id": updateID,
		"message": map[string]any{
			"message_id": updateID,
			"date":       1700000000,
			"text":       "hi",
			"from":       map[string]any{"id": userID, "is_bot": false, "first_name": "U", "username": fmt.Sprintf("u%d", userID)},
			"chat":       map[string]any{"id": userID, "type": "private"},
		},
	}
}

// ChannelPostUpdate builds an update without a message sender.
func ChannelPostUpdate(updateID int) map[string]any {
	return map[string]any{
		"update_id": updateID,
		"channel_post": map[string]any{
			"message_id": updateID,
			"date":       1700000000,
			"text":       "news",
			"chat":       map[string]any{"id": -1001, "type": "channel"},
		},
	}
}

func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	// /bot<token>/<method>
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "bot") {
		http.NotFound(w, r)
		return
	}
	call := Call{Token: strings.TrimPrefix(parts[0], "bot"), Method: parts[1], Params: readParams(r)}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	if call.Token != s.GoodToken {
		reply(w, http.StatusUnauthorized, map[string]any{"ok": false, "error_code": 401, "description": "Unauthorized"})
		return
	}
	switch call.Method {
	case "getMe":
		ok(w, map[string]any{"id": 777, "is_bot": true, "first_name": "Demo", "username": "demo_bot"})
	case "deleteWebhook":
		ok(w, true)
	case "getUpdates":
		ups := s.Updates
		if ups == nil {
			ups = []map[string]any{}
		}
		ok(w, ups)
	case "sendMessage":
		chat := call.Params["chat_id"]
		if s.Blocked[chat] {
			reply(w, http.StatusForbidden, map[string]any{"ok": false, "error_code": 403, "description": "Forbidden: bot was blocked by the user"})
			return
		}
		var id json.Number = json.Number(chat)
		ok(w, map[string]any{
			"message_id": 1,
			"date":       1700000000,
			"text":       call.Params["text"],
			"chat":       map[string]any{"id": id, "type": "private"},
		})
	default:
		reply(w, http.StatusNotFound, map[string]any{"ok": false, "error_code": 404, "description": "Not Found"})
	}
}

func ok(w http.ResponseWriter, result any) {
	reply(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

func reply(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func readParams(r *http.Request) map[string]string {
	out := map[string]string{}
	for k, v := range r.URL.Query() {
		out[k] = v[0]
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		dec := json.NewDecoder(strings.NewReader(string(body)))
		dec.UseNumber()
		if dec.Decode(&m) == nil {
			for k, v := range m {
				out[k] = fmt.Sprint(v)
			}
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				out[k] = v[0]
			}
		}
	default:
		if err := r.ParseForm(); err == nil {
			for k, v := range r.PostForm {
				out[k] = v[0]
			}
		}
	}
	return out
}

