// Package didit processes KYC verification webhooks from Didit.
package didit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/circletel/circletel/internal/events"
	"github.com/circletel/circletel/internal/store"
	"github.com/jmoiron/sqlx/types"
	"github.com/tidwall/gjson"
)

// Slug is the integration_registry slug webhooks are logged under.
const Slug = "didit"

var (
	ErrNotConfigured   = errors.New("didit webhook secret not configured")
	ErrBadSignature    = errors.New("invalid webhook signature")
	ErrInvalidPayload  = errors.New("invalid JSON payload")
	ErrMissingSession  = errors.New("didit webhook payload missing session identifier (sessionId/session_id)")
	ErrSessionNotFound = errors.New("KYC session not found")
	ErrUnknownEvent    = errors.New("unknown event type")
	ErrMissingData     = errors.New("missing result or extracted data")
)

// Events sent by Didit.
const (
	EventCompleted = "verification.completed"
	EventFailed    = "verification.failed"
	EventAbandoned = "session.abandoned"
	EventExpired   = "session.expired"
	EventStatus    = "status.updated"
)

// Session statuses.
const (
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
	SessionAbandoned  = "abandoned"
	SessionDeclined   = "declined"
)

// Result describes a processed webhook.
type Result struct {
	SessionID          string `json:"session_id"`
	Event              string `json:"event"`
	Duplicate          bool   `json:"duplicate,omitempty"`
	Status             string `json:"status"`
	VerificationResult string `json:"verification_result,omitempty"`
	RiskTier           string `json:"risk_tier,omitempty"`
}

// Options configures a Handler. Events is optional.
type Options struct {
	Store  store.Store
	Secret string
	Events events.Publisher
	Logger *slog.Logger
}

// Handler verifies and applies Didit webhooks.
type Handler struct {
	store  store.Store
	secret string
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates a webhook handler.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		store:  opts.Store,
		secret: opts.Secret,
		events: opts.Events,
		logger: opts.Logger.With("component", "didit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if h.events == nil {
		h.events = events.Nop{}
	}
	return h
}

// Configured reports whether a webhook secret is set.
func (h *Handler) Configured() bool { return h.secret != "" }

// Verify checks the hex HMAC-SHA256 signature of body in constant time.
func (h *Handler) Verify(body []byte, signature string) error {
	if !h.Configured() {
		return ErrNotConfigured
	}
	if signature == "" {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrBadSignature
	}
	return nil
}

// Handle verifies, applies and logs one webhook delivery.
func (h *Handler) Handle(ctx context.Context, body []byte, signature string) (*Result, error) {
	if err := h.Verify(body, signature); err != nil {
		h.record(ctx, body, "", false, "failed", err)
		return nil, err
	}
	res, err := h.process(ctx, body)
	event := ""
	if res != nil {
		event = res.Event
	}
	switch {
	case err != nil:
		h.record(ctx, body, event, true, "failed", err)
		h.logger.Warn("didit webhook failed", "event", event, "error", err)
	case res.Duplicate:
		h.record(ctx, body, event, true, "duplicate", nil)
	default:
		h.record(ctx, body, event, true, "processed", nil)
		h.events.Publish(events.KYCUpdated, res)
		h.logger.Info("kyc session updated", "session_id", res.SessionID, "event", res.Event,
			"status", res.Status, "result", res.VerificationResult)
	}
	return res, err
}

// update is the set of changes an event applies to a session.
type update struct {
	status      string
	result      string
	riskTier    string
	riskScore   int
	kybStatus   string
	extracted   types.JSONText
	completed   bool
	customerKYC string
}

func (h *Handler) process(ctx context.Context, body []byte) (*Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	doc := gjson.ParseBytes(body)
	event := firstString(doc, "event", "webhook_type")
	res := &Result{Event: event}

	sessionID := firstString(doc, "sessionId", "session_id")
	if sessionID == "" {
		return res, ErrMissingSession
	}
	res.SessionID = sessionID

	sess, err := h.store.GetKYCSessionByDiditID(ctx, sessionID)
	if err != nil {
		return res, fmt.Errorf("load kyc session: %w", err)
	}
	if sess == nil {
		return res, fmt.Errorf("%w for Didit session ID: %s", ErrSessionNotFound, sessionID)
	}

	if isDuplicate(sess.RawWebhookPayload, event, doc.Get("timestamp")) {
		h.logger.Warn("duplicate didit webhook, skipping", "session_id", sessionID, "event", event)
		res.Duplicate = true
		res.Status = sess.Status
		res.VerificationResult = sess.VerificationResult
		res.RiskTier = sess.RiskTier
		return res, nil
	}

	u, err := changesFor(event, doc)
	if err != nil {
		return res, err
	}

	now := h.now()
	sess.Status = u.status
	if u.result != "" {
		sess.VerificationResult = u.result
	}
	if u.riskTier != "" {
		sess.RiskTier = u.riskTier
	}
	if u.riskScore > 0 {
		sess.RiskScore = u.riskScore
	}
	if len(u.extracted) > 0 {
		sess.ExtractedData = u.extracted
	}
	if u.completed {
		sess.CompletedAt = &now
	}
	sess.WebhookReceivedAt = &now
	sess.RawWebhookPayload = types.JSONText(body)
	if err := h.store.UpdateKYCSession(ctx, sess); err != nil {
		return res, fmt.Errorf("update kyc session: %w", err)
	}

	kybID := sess.KYBSubjectID
	if v := vendorSubject(doc); v != "" {
		kybID = v
	}
	if kybID != "" && u.kybStatus != "" {
		if err := h.store.UpdateKYBSubjectStatus(ctx, kybID, u.kybStatus, u.riskTier); err != nil {
			h.logger.Warn("update kyb subject failed", "kyb_subject_id", kybID, "error", err)
		}
	}
	if sess.CustomerID != "" && u.customerKYC != "" {
		if err := h.store.UpdateCustomerKYCStatus(ctx, sess.CustomerID, u.customerKYC); err != nil {
			h.logger.Warn("update customer kyc status failed", "customer_id", sess.CustomerID, "error", err)
		}
	}

	res.Status = sess.Status
	res.VerificationResult = sess.VerificationResult
	res.RiskTier = sess.RiskTier
	return res, nil
}

func changesFor(event string, doc gjson.Result) (update, error) {
	switch event {
	case EventCompleted:
		data := doc.Get("data")
		if !doc.Get("result").Exists() || !data.IsObject() {
			return update{}, ErrMissingData
		}
		score := Score(data)
		result := score.Result()
		return update{
			status:      SessionCompleted,
			result:      result,
			riskTier:    score.Tier,
			riskScore:   score.Score,
			kybStatus:   result,
			extracted:   types.JSONText(data.Raw),
			completed:   true,
			customerKYC: result,
		}, nil

	case EventFailed:
		return update{
			status:      SessionDeclined,
			result:      ResultDeclined,
			riskTier:    TierHigh,
			kybStatus:   ResultDeclined,
			completed:   true,
			customerKYC: ResultDeclined,
		}, nil

	case EventAbandoned:
		return update{status: SessionAbandoned, kybStatus: "abandoned"}, nil

	case EventExpired:
		return update{status: SessionAbandoned, kybStatus: "expired"}, nil

	case EventStatus:
		return statusChanges(doc.Get("status").String()), nil
	}
	return update{}, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
}

// statusChanges maps a free-form Didit status such as "In Review" onto the
// session fields.
func statusChanges(raw string) update {
	status := strings.Join(strings.Fields(strings.ToLower(raw)), "_")
	switch status {
	case "approved":
		return update{status: SessionCompleted, result: ResultApproved, riskTier: TierLow,
			kybStatus: ResultApproved, completed: true, customerKYC: ResultApproved}
	case "declined", "rejected":
		return update{status: SessionCompleted, result: ResultDeclined, riskTier: TierHigh,
			kybStatus: ResultDeclined, completed: true, customerKYC: ResultDeclined}
	case "in_review":
		return update{status: SessionInProgress, result: ResultPendingReview, riskTier: TierMedium,
			kybStatus: ResultPendingReview, customerKYC: ResultPendingReview}
	case "abandoned", "expired", "kyc_expired":
		return update{status: SessionAbandoned, completed: true}
	}
	return update{status: SessionInProgress}
}

func isDuplicate(previous types.JSONText, event string, timestamp gjson.Result) bool {
	if len(previous) == 0 || !gjson.ValidBytes(previous) {
		return false
	}
	prev := gjson.ParseBytes(previous)
	prevEvent := firstString(prev, "event", "webhook_type")
	if prevEvent == "" || prevEvent != event {
		return false
	}
	prevTS := prev.Get("timestamp")
	return prevTS.Exists() && timestamp.Exists() && prevTS.String() == timestamp.String()
}

// vendorSubject reads kyb_subject_id from vendor_data, which Didit echoes back
// either as a JSON string or as an object.
func vendorSubject(doc gjson.Result) string {
	vd := doc.Get("vendor_data")
	if !vd.Exists() {
		return ""
	}
	if vd.Type == gjson.String {
		if !gjson.Valid(vd.Str) {
			return ""
		}
		return gjson.Get(vd.Str, "kyb_subject_id").String()
	}
	return vd.Get("kyb_subject_id").String()
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) record(ctx context.Context, body []byte, event string, verified bool, status string, procErr error) {
	payload := types.JSONText("{}")
	if gjson.ValidBytes(body) {
		payload = types.JSONText(body)
	}
	l := &store.IntegrationWebhookLog{
		IntegrationSlug:   Slug,
		EventType:         event,
		Status:            status,
		SignatureVerified: verified,
		Payload:           payload,
		ReceivedAt:        h.now(),
	}
	if procErr != nil {
		l.ErrorMessage = procErr.Error()
	}
	if err := h.store.LogIntegrationWebhook(ctx, l); err != nil {
		h.logger.Warn("log didit webhook failed", "error", err)
	}
}
