package web

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/go-chi/chi/v5"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{
		Error: errorBody{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type messageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type conversationView struct {
	Id          int           `json:"id"`
	Players     []string      `json:"players"`
	NPCs        []string      `json:"npcs"`
	Muted       []string      `json:"muted"`
	Messages    int           `json:"messages"`
	Locked      bool          `json:"locked"`
	ChatEnabled bool          `json:"chatEnabled"`
	Radiant     bool          `json:"radiant"`
	StartedAt   time.Time     `json:"startedAt"`
	History     []messageView `json:"history,omitempty"`
}

// view runs on the world loop.
func (s *Server) view(c *conversations.Conversation, withHistory bool) conversationView {
	v := conversationView{
		Id:          c.Id,
		Players:     nonNil(c.PlayerNames()),
		NPCs:        nonNil(c.NPCNames()),
		Muted:       nonNil(c.MutedNames()),
		Messages:    c.NonSystemCount(),
		Locked:      s.commands.Manager.IsLocked(c),
		ChatEnabled: c.ChatEnabled,
		Radiant:     c.Radiant,
		StartedAt:   c.StartedAt,
	}

	if withHistory {
		for _, msg := range c.History() {
			if msg.IsPlaceholder() {
				continue
			}
			v.History = append(v.History, messageView{
				Role:      string(msg.Role),
				Content:   msg.Content,
				Timestamp: msg.Timestamp,
			})
		}
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	var views []conversationView
	s.loop.Call(func() {
		for _, c := range s.commands.Manager.Active() {
			views = append(views, s.view(c, false))
		}
	})

	sort.Slice(views, func(i, j int) bool { return views[i].Id < views[j].Id })
	if views == nil {
		views = []conversationView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// conversationId reports a bad request itself when the id doesn't parse.
func conversationId(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, `id`))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, `bad_request`, `conversation id must be a number`)
		return 0, false
	}
	return id, true
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationId(w, r)
	if !ok {
		return
	}

	var v conversationView
	var found bool
	s.loop.Call(func() {
		if c := s.commands.Manager.ById(id); c != nil {
			v, found = s.view(c, true), true
		}
	})

	if !found {
		writeJSONError(w, http.StatusNotFound, `not_found`, `no such conversation`)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// endConversation starts ending a conversation and returns without waiting
// for summaries to be written.
func (s *Server) endConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationId(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	skipMemory, _ := strconv.ParseBool(q.Get(`skipMemory`))
	graceful, _ := strconv.ParseBool(q.Get(`graceful`))

	var found bool
	s.loop.Call(func() {
		m := s.commands.Manager
		c := m.ById(id)
		if c == nil {
			return
		}
		found = true
		if graceful {
			m.EndGracefully(c)
		} else {
			m.End(c, skipMemory)
		}
	})

	if !found {
		writeJSONError(w, http.StatusNotFound, `not_found`, `no such conversation`)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		`id`:     id,
		`status`: `ending`,
	})
}
