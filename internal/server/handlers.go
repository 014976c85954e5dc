package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/enrich"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/parse"
)

const maxUploadBytes = 32 << 20

// userEmail identifies the caller. Authentication is handled upstream; the
// proxy injects the verified identity in this header.
func userEmail(r *http.Request) string {
	return r.Header.Get("X-User-Email")
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := userEmail(r)
	if user == "" {
		s.respondError(w, http.StatusUnauthorized, "X-User-Email header is required")
		return "", false
	}
	return user, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.deps.Storage.CountContacts(r.Context())
	if err != nil {
		s.logger.Error("status: count contacts failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"contacts":          count,
		"vector_index_size": s.deps.VectorIndex.Size(),
		"namespaces":        len(s.deps.VectorIndex.Namespaces()),
		"config": map[string]interface{}{
			"embedding_model":      s.config.Embedding.Model,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"assistant_model":      s.config.Assistant.Model,
			"session_ttl_minutes":  s.config.Enrich.SessionTTLMinutes,
		},
	})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	contacts, err := s.deps.Storage.ListContacts(r.Context(), user)
	if err != nil {
		s.logger.Error("list contacts failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"contacts": contacts,
		"total":    len(contacts),
	})
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var contact models.Contact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if contact.FullName() == "" {
		s.respondError(w, http.StatusBadRequest, "contact name is required")
		return
	}
	contact.UserEmail = user
	if err := s.deps.Storage.CreateContact(r.Context(), &contact); err != nil {
		s.logger.Error("create contact failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.deps.Indexer.IndexContactCard(r.Context(), &contact); err != nil {
		s.logger.Warn("failed to index contact card", zap.Int64("contact_id", contact.ID), zap.Error(err))
	}
	s.respondJSON(w, http.StatusCreated, &contact)
}

func (s *Server) contactFromURL(w http.ResponseWriter, r *http.Request, user string) (*models.Contact, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid contact id")
		return nil, false
	}
	contact, err := s.deps.Storage.GetContact(r.Context(), user, id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "contact not found")
		return nil, false
	}
	return contact, true
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	contact, ok := s.contactFromURL(w, r, user)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, contact)
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	contact, ok := s.contactFromURL(w, r, user)
	if !ok {
		return
	}
	var update models.Contact
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	update.ID = contact.ID
	update.UserEmail = user
	update.CreatedAt = contact.CreatedAt
	if update.FullName() == "" {
		s.respondError(w, http.StatusBadRequest, "contact name is required")
		return
	}
	if err := s.deps.Storage.UpdateContact(r.Context(), &update); err != nil {
		s.logger.Error("update contact failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.deps.Indexer.IndexContactCard(r.Context(), &update); err != nil {
		s.logger.Warn("failed to reindex contact card", zap.Int64("contact_id", update.ID), zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, &update)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	contact, ok := s.contactFromURL(w, r, user)
	if !ok {
		return
	}
	if err := s.deps.Indexer.DeleteContact(r.Context(), contact); err != nil {
		s.logger.Error("delete contact failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleDeleteAllContacts(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	contacts, err := s.deps.Storage.ListContacts(r.Context(), user)
	if err != nil {
		s.logger.Error("delete all contacts failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	deleted := 0
	for _, contact := range contacts {
		if err := s.deps.Indexer.DeleteContact(r.Context(), contact); err != nil {
			s.logger.Error("delete contact failed",
				zap.Int64("contact_id", contact.ID), zap.Error(err))
			continue
		}
		deleted++
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

func (s *Server) handleSearchContacts(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	ids := make([]int64, 0, 2*limit)
	seen := make(map[int64]bool)
	appendID := func(raw string) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	keywordHits, err := s.deps.KeywordIndex.Search(r.Context(), user, query, limit)
	if err != nil {
		s.logger.Error("keyword search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, hit := range keywordHits {
		appendID(hit.ID)
	}

	queryVec, err := s.deps.Embedder.Embed(r.Context(), query)
	if err != nil {
		s.logger.Error("query embedding failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	semanticHits, err := s.deps.VectorIndex.Search(r.Context(), indexer.UserNamespace(user), queryVec, limit)
	if err != nil {
		s.logger.Error("vector search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, hit := range semanticHits {
		appendID(hit.Owner)
	}

	contacts := make([]*models.Contact, 0, limit)
	for _, id := range ids {
		if len(contacts) == limit {
			break
		}
		contact, err := s.deps.Storage.GetContact(r.Context(), user, id)
		if err != nil {
			continue
		}
		contacts = append(contacts, contact)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"contacts": contacts,
		"total":    len(contacts),
	})
}

func (s *Server) handleUploadContactFile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	contact, ok := s.contactFromURL(w, r, user)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	// Extraction dispatches on the file extension, so spool the upload to a
	// temp path carrying the original name.
	tmpDir, err := os.MkdirTemp("", "meishi-upload-")
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.RemoveAll(tmpDir)
	path := filepath.Join(tmpDir, filepath.Base(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dst.Close()

	if err := s.deps.Indexer.IndexContactFile(r.Context(), contact, path); err != nil {
		s.logger.Error("index contact file failed", zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{
		"filename": filepath.Base(header.Filename),
		"status":   "indexed",
	})
}

func (s *Server) handleDeleteContactFile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	contact, ok := s.contactFromURL(w, r, user)
	if !ok {
		return
	}
	filename := chi.URLParam(r, "filename")
	removed, err := s.deps.Indexer.DeleteContactFile(r.Context(), contact, filename)
	if err != nil {
		s.logger.Error("delete contact file failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleImport stages the uploaded contact files, parses them, classifies the
// batch against the caller's contacts, and returns the match report with the
// server-proposed default actions.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one file is required")
		return
	}

	ref, err := s.deps.Staging.Create()
	if err != nil {
		s.logger.Error("staging failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, header := range files {
		if !parse.IsContactFile(header.Filename) {
			s.cancelStaging(ref)
			s.respondError(w, http.StatusBadRequest, "unsupported contact file: "+header.Filename)
			return
		}
		f, err := header.Open()
		if err != nil {
			s.cancelStaging(ref)
			s.respondError(w, http.StatusBadRequest, "unreadable upload: "+header.Filename)
			return
		}
		_, err = s.deps.Staging.Save(ref, header.Filename, f)
		f.Close()
		if err != nil {
			s.cancelStaging(ref)
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	paths, err := s.deps.Staging.List(ref)
	if err != nil {
		s.cancelStaging(ref)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	incoming := parse.Files(paths, s.logger)
	if len(incoming) == 0 {
		s.cancelStaging(ref)
		s.respondError(w, http.StatusUnprocessableEntity, "no contacts found in uploaded files")
		return
	}

	existing, err := s.deps.Storage.ListContacts(r.Context(), user)
	if err != nil {
		s.cancelStaging(ref)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	report := enrich.BuildReport(user, incoming, existing, ref)
	token := s.deps.Sessions.Put(report)

	proposed := make(map[string]models.ContactAction, len(report.Entries))
	for idx, action := range enrich.DefaultActions(report) {
		proposed[strconv.Itoa(idx)] = action
	}

	s.logger.Info("import report built",
		zap.String("user", user),
		zap.String("token", token),
		zap.Int("total", report.Total),
		zap.Int("exact", report.Exact),
		zap.Int("partial", report.Partial),
		zap.Int("none", report.None))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"report":           report,
		"proposed_actions": proposed,
	})
}

func (s *Server) cancelStaging(ref string) {
	if err := s.deps.Staging.Remove(ref); err != nil {
		s.logger.Warn("failed to remove staged files", zap.String("staging_ref", ref), zap.Error(err))
	}
}

type commitRequest struct {
	Actions   map[string]models.ContactAction `json:"actions"`
	Overwrite *bool                           `json:"overwrite"`
}

func (s *Server) handleImportCommit(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	token := chi.URLParam(r, "token")
	report, err := s.deps.Sessions.Get(token)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if report.UserEmail != user {
		s.respondError(w, http.StatusForbidden, "import belongs to another user")
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	actions := make(map[int]models.ContactAction, len(req.Actions))
	for key, action := range req.Actions {
		idx, err := strconv.Atoi(key)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid action index: "+key)
			return
		}
		actions[idx] = action
	}
	overwrite := s.config.Enrich.DefaultOverwrite
	if req.Overwrite != nil {
		overwrite = *req.Overwrite
	}

	outcome, err := s.deps.Committer.Commit(r.Context(), report, actions, overwrite)
	if err != nil {
		var invalid *enrich.InvalidActionError
		if errors.As(err, &invalid) {
			s.deps.Sessions.Delete(token)
			s.respondError(w, http.StatusBadRequest, invalid.Error())
			return
		}
		s.logger.Error("import commit failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deps.Sessions.Delete(token)

	s.logger.Info("import committed",
		zap.String("user", user),
		zap.String("token", token),
		zap.Int("merged", outcome.Merged),
		zap.Int("created", outcome.Created),
		zap.Int("skipped", outcome.Skipped),
		zap.Int("failures", len(outcome.Failures)))
	s.respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleImportCancel(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	token := chi.URLParam(r, "token")
	report, err := s.deps.Sessions.Get(token)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if report.UserEmail != user {
		s.respondError(w, http.StatusForbidden, "import belongs to another user")
		return
	}
	s.deps.Committer.Cancel(report)
	s.deps.Sessions.Delete(token)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type assistantQueryRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAssistantQuery(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req assistantQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	answer, err := s.deps.Assistant.Answer(r.Context(), user, req.Question)
	if err != nil {
		s.logger.Error("assistant query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleAssistantHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	history, err := s.deps.Assistant.History(r.Context(), user, limit)
	if err != nil {
		s.logger.Error("assistant history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"messages": history})
}

func (s *Server) handleAssistantClearHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := s.deps.Assistant.ClearHistory(r.Context(), user); err != nil {
		s.logger.Error("clear history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
