package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/circletel/circletel/internal/blob"
	"github.com/circletel/circletel/internal/store"
)

const defaultMaxUploadBytes = 10 << 20

var kycContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

var kycDocumentTypes = map[string]bool{
	"id_document":          true,
	"proof_of_address":     true,
	"bank_statement":       true,
	"company_registration": true,
	"other":                true,
}

// customerForRequest resolves the customer a KYC request acts for. Admins
// may name any customer with customer_id; everyone else acts for the
// customer linked to their login.
func (s *Server) customerForRequest(r *http.Request, customerID string) (*store.Customer, int, error) {
	identity := getIdentityFromContext(r.Context())
	if customerID != "" && identity.IsAdmin() {
		c, err := s.store.GetCustomer(r.Context(), customerID)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		if c == nil {
			return nil, http.StatusNotFound, errors.New("Customer not found")
		}
		return c, 0, nil
	}
	c, err := s.store.GetCustomerByAuthUser(r.Context(), identity.UserID)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	if c == nil {
		return nil, http.StatusNotFound, errors.New("Customer record not found for authenticated user")
	}
	return c, 0, nil
}

func (s *Server) handleUploadKYCDocument(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "document storage not configured")
		return
	}
	limit := s.maxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	// Allow for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)
	if err := r.ParseMultipartForm(limit); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MiB limit", limit>>20))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	if header.Size > limit {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MiB limit", limit>>20))
		return
	}

	docType := r.FormValue("document_type")
	if docType == "" {
		docType = "other"
	}
	if !kycDocumentTypes[docType] {
		writeError(w, http.StatusBadRequest, "invalid document_type")
		return
	}

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	contentType := http.DetectContentType(sniff[:n])
	if !kycContentTypes[contentType] {
		writeError(w, http.StatusBadRequest, "unsupported file type, expected PDF, JPEG or PNG")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	customer, status, err := s.customerForRequest(r, r.FormValue("customer_id"))
	if err != nil {
		if status == http.StatusInternalServerError {
			s.logger.Error("failed to resolve customer", "error", err)
			err = errors.New("failed to resolve customer")
		}
		writeError(w, status, err.Error())
		return
	}

	name := blob.SafeName(header.Filename)
	key := path.Join("kyc", customer.ID, uuid.NewString()+"-"+name)
	info, err := s.blobs.Put(r.Context(), key, file, blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"customer_id":   customer.ID,
			"document_type": docType,
		},
	})
	if err != nil {
		s.logger.Error("failed to store kyc document", "customer_id", customer.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store document")
		return
	}

	doc := &store.KYCDocument{
		CustomerID:   customer.ID,
		DocumentType: docType,
		FileName:     name,
		ContentType:  contentType,
		SizeBytes:    info.Size,
		StorageKey:   key,
		Status:       "uploaded",
	}
	if err := s.store.CreateKYCDocument(r.Context(), doc); err != nil {
		s.logger.Error("failed to record kyc document", "customer_id", customer.ID, "error", err)
		if _, derr := s.blobs.Delete(r.Context(), key); derr != nil {
			s.logger.Warn("failed to remove orphaned document", "key", key, "error", derr)
		}
		writeError(w, http.StatusInternalServerError, "failed to record document")
		return
	}
	s.logger.Info("kyc document uploaded", "document_id", doc.ID, "customer_id", customer.ID, "type", docType, "size", info.Size)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListKYCDocuments(w http.ResponseWriter, r *http.Request) {
	customer, status, err := s.customerForRequest(r, "")
	if err != nil {
		if status == http.StatusInternalServerError {
			s.logger.Error("failed to resolve customer", "error", err)
			err = errors.New("failed to resolve customer")
		}
		writeError(w, status, err.Error())
		return
	}
	s.writeKYCDocuments(w, r, customer.ID)
}

func (s *Server) handleAdminListKYCDocuments(w http.ResponseWriter, r *http.Request) {
	s.writeKYCDocuments(w, r, chi.URLParam(r, "customerID"))
}

func (s *Server) writeKYCDocuments(w http.ResponseWriter, r *http.Request, customerID string) {
	docs, err := s.store.ListKYCDocuments(r.Context(), customerID)
	if err != nil {
		s.logger.Error("failed to list kyc documents", "customer_id", customerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []store.KYCDocument{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleKYCDocumentURL(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "document storage not configured")
		return
	}
	doc, err := s.store.GetKYCDocument(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.logger.Error("failed to load kyc document", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	identity := getIdentityFromContext(r.Context())
	if !identity.IsAdmin() {
		c, err := s.store.GetCustomerByAuthUser(r.Context(), identity.UserID)
		if err != nil {
			s.logger.Error("failed to resolve customer", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to resolve customer")
			return
		}
		// Other customers' documents are reported as missing.
		if c == nil || c.ID != doc.CustomerID {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
	}

	u, err := s.blobs.PresignURL(r.Context(), doc.StorageKey, s.presignTTL)
	if err != nil {
		s.logger.Error("failed to presign document url", "document_id", doc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create download link")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":        u,
		"expires_at": s.now().Add(s.presignTTL).UTC().Format(time.RFC3339),
	})
}

// handleDownloadFile serves a blob named by a signed link.
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil || s.signer == nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	key, err := s.signer.Verify(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusForbidden, "invalid or expired link")
		return
	}
	info, rc, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.logger.Error("failed to read file", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer rc.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	w.Header().Set("Cache-Control", "private, no-store")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("file download interrupted", "key", key, "error", err)
	}
}
