package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/macha/internal/attachments"
	"github.com/MikeSquared-Agency/macha/internal/flows"
	"github.com/MikeSquared-Agency/macha/internal/session"
	"github.com/MikeSquared-Agency/macha/internal/speech"
)

type topicRequest struct {
	Topic string `json:"topic"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type speechRequest struct {
	Text     string `json:"text"`
	Encoding string `json:"encoding"`
}

type speechResponse struct {
	AudioDataURI string `json:"audioDataUri"`
}

type errorResponse struct {
	Error  string          `json:"error"`
	Notice *session.Notice `json:"notice,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(chi.URLParam(r, "id")) {
		writeError(w, session.ErrNotFound, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setTopic(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req topicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
		return
	}
	topic, err := flows.ParseTopic(req.Topic)
	if err == nil {
		err = sess.SetTopic(topic)
	}
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
		return
	}

	res, err := sess.SendMessage(r.Context(), identityFrom(r), req.Text)
	if err != nil {
		var n *session.Notice
		if errors.Is(err, session.ErrSignInRequired) {
			n = &session.NoticeSignIn
		}
		writeError(w, err, n)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// uploadLimit leaves room for the multipart envelope around a maximal image.
const uploadLimit = attachments.MaxImageBytes + 1<<20

func (s *Server) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, uploadLimit)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, attachments.ErrTooLarge, nil)
			return
		}
		http.Error(w, fmt.Sprintf(`{"error":"missing file: %v"}`, err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(header.Filename)); byExt != "" {
			contentType = byExt
		}
	}

	res, err := sess.UploadImage(r.Context(), identityFrom(r), session.Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Body:        file,
		Size:        header.Size,
	})
	if err != nil {
		var n *session.Notice
		switch {
		case errors.Is(err, session.ErrSignInRequired):
			n = &session.NoticeUploadSignIn
		case errors.Is(err, attachments.ErrNotImage):
			n = &session.NoticeNotImage
		}
		writeError(w, err, n)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) speakMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
		return
	}
	enc, err := speech.ParseEncoding(req.Encoding)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	uri, err := sess.Speak(r.Context(), identityFrom(r), chi.URLParam(r, "mid"), enc)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, speechResponse{AudioDataURI: uri})
}

func (s *Server) speak(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
		return
	}
	enc, err := speech.ParseEncoding(req.Encoding)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	uri, err := s.sessions.Engine().Speak(r.Context(), req.Text, enc)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, speechResponse{AudioDataURI: uri})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrEmptyInput),
		errors.Is(err, flows.ErrEmptyQuery),
		errors.Is(err, flows.ErrUnknownTopic),
		errors.Is(err, speech.ErrEmptyText),
		errors.Is(err, speech.ErrUnknownEncoding),
		errors.Is(err, attachments.ErrNoOwner):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSignInRequired):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, attachments.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, attachments.ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, speech.ErrSynthesisFailed),
		errors.Is(err, flows.ErrMalformedOutput):
		return http.StatusBadGateway
	case errors.Is(err, speech.ErrMissingCredential),
		errors.Is(err, session.ErrSpeechDisabled),
		errors.Is(err, session.ErrUploadsDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error, n *session.Notice) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Notice: n})
}
