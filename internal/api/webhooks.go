package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/circletel/circletel/internal/billing"
	"github.com/circletel/circletel/internal/didit"
	"github.com/circletel/circletel/internal/metrics"
	"github.com/circletel/circletel/internal/netcash"
	"github.com/circletel/circletel/internal/ratelimit"
)

// NetCash retries any non-2xx answer, so every outcome of a delivery that
// passed the rate limiter is reported with 200 and a success flag.
func (s *Server) handleNetcashWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if s.webhookSecret == "" || s.processor == nil {
		s.logger.Error("netcash webhook received without payment configuration")
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Payment configuration not found",
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Webhook validation failed",
			"errors":  []string{"Failed to read request body"},
		})
		return
	}

	ip := s.clientIP(r)
	payload, errs := s.validateNetcashWebhook(r, body, ip)
	if len(errs) > 0 {
		s.logger.Warn("netcash webhook validation failed", "ip", ip, "errors", errs)
		metrics.RecordWebhook("netcash", "invalid", billing.StatusFailed, time.Since(start))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Webhook validation failed",
			"errors":  errs,
		})
		return
	}
	s.logger.Info("netcash webhook received", "payload", netcash.SanitizeForLogging(payload))

	res, err := s.processor.Process(r.Context(), billing.Webhook{
		Payload:           payload,
		Raw:               body,
		SignatureVerified: true,
		SourceIP:          ip,
		UserAgent:         r.UserAgent(),
		Headers:           webhookHeaders(r),
	})
	if err != nil {
		s.logger.Error("netcash webhook processing error", "error", err)
		metrics.RecordWebhook("netcash", netcash.WebhookType(payload), billing.StatusFailed, time.Since(start))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Internal server error",
			"message": err.Error(),
		})
		return
	}
	metrics.RecordWebhook("netcash", res.Type, res.Status, time.Since(start))

	switch res.Status {
	case billing.StatusDuplicate:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": billing.MsgDuplicate,
		})
	case billing.StatusFailed:
		msg := res.Message
		if res.Err != nil {
			msg = res.Err.Error()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Processing failed",
			"message": msg,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"message":        "Webhook processed successfully",
			"webhookId":      res.WebhookID,
			"processingTime": time.Since(start).Milliseconds(),
		})
	}
}

// validateNetcashWebhook checks the source address, the signature and the
// payload, collecting every problem found.
func (s *Server) validateNetcashWebhook(r *http.Request, body []byte, ip string) (*netcash.Payload, []string) {
	var errs []string
	if !netcash.IsNetcashIP(ip, s.production) {
		errs = append(errs, "Unauthorized IP address: "+ip)
	}

	payload, err := netcash.ParsePayload(body)
	if err != nil {
		var ve *netcash.ValidationError
		if errors.As(err, &ve) {
			errs = append(errs, ve.Errors...)
		} else {
			errs = append(errs, err.Error())
		}
		return nil, errs
	}

	sig := r.Header.Get("X-Netcash-Signature")
	if sig == "" {
		sig = r.Header.Get("X-Signature")
	}
	if sig == "" && payload.FormEncoded() {
		sig = payload.Params["signature"]
		if sig == "" {
			sig = payload.Params["Signature"]
		}
	}
	var valid bool
	switch {
	case sig == "":
		errs = append(errs, "Missing webhook signature")
	case payload.FormEncoded():
		valid = netcash.ValidateURLEncodedSignature(payload.Params, sig, s.webhookSecret)
	default:
		valid = netcash.ValidateSignature(body, sig, s.webhookSecret)
	}
	if sig != "" && !valid {
		errs = append(errs, "Invalid webhook signature")
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return payload, nil
}

func (s *Server) handleNetcashWebhookHealth(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "No active payment configuration found",
		})
		return
	}
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("webhook health check: store unreachable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "Database connection failed",
		})
		return
	}
	env := "test"
	if s.production {
		env = "production"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"environment": env,
		"timestamp":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDiditWebhook(w http.ResponseWriter, r *http.Request) {
	if s.kyc == nil || !s.kyc.Configured() {
		writeError(w, http.StatusServiceUnavailable, "KYC webhook not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	res, err := s.kyc.Handle(r.Context(), body, r.Header.Get("X-Didit-Signature"))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, didit.ErrBadSignature):
			status = http.StatusUnauthorized
		case errors.Is(err, didit.ErrSessionNotFound):
			status = http.StatusNotFound
		case errors.Is(err, didit.ErrInvalidPayload), errors.Is(err, didit.ErrMissingSession),
			errors.Is(err, didit.ErrUnknownEvent), errors.Is(err, didit.ErrMissingData):
			status = http.StatusBadRequest
		default:
			s.logger.Error("didit webhook failed", "error", err)
		}
		metrics.RecordWebhook("didit", "", "failed", time.Since(start))
		writeError(w, status, err.Error())
		return
	}
	outcome := "processed"
	if res.Duplicate {
		outcome = "duplicate"
	}
	metrics.RecordWebhook("didit", res.Event, outcome, time.Since(start))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  res,
	})
}

// clientIP is the caller address, taken from forwarding headers only when
// the connection comes from a configured trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	return ratelimit.ClientIP(r, s.trustedProxies)
}

func webhookHeaders(r *http.Request) map[string]string {
	out := make(map[string]string)
	for _, h := range []string{"Content-Type", "User-Agent", "X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP", "X-Netcash-Signature", "X-Signature"} {
		if v := r.Header.Get(h); v != "" {
			out[h] = v
		}
	}
	return out
}
