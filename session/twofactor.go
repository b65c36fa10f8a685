package session

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/rundeklar/go-auth-client/internal/autherrors"
)

const (
	setup2FAPath   = "/auth/setup-2fa"
	verify2FAPath  = "/auth/verify-2fa-setup"
	disable2FAPath = "/auth/disable-2fa"
)

// TwoFactorSetup is the provisioning payload for enrolling an
// authenticator app.
type TwoFactorSetup struct {
	QRCode string `json:"qrCode"` // Data URL for the provisioning QR code
	Secret string `json:"secret"` // Manual-entry fallback
}

type verify2FAResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

// SetupTwoFactor requests second-factor provisioning for the
// authenticated account. Enrollment is not active until
// VerifyTwoFactorSetup confirms a code. Does not alter the credential
// pair.
func (s *Service) SetupTwoFactor(ctx context.Context) (*TwoFactorSetup, error) {
	resp, err := s.deps.Fetch.DoJSON(ctx, http.MethodPost, setup2FAPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.SetupTwoFactor] authority call")
	}
	defer resp.Body.Close()

	if err := checkFailure(resp); err != nil {
		return nil, err
	}
	var setup TwoFactorSetup
	if err := decodeJSON(resp, &setup); err != nil {
		return nil, err
	}
	return &setup, nil
}

// VerifyTwoFactorSetup submits the first code from the authenticator,
// activating the second factor. The returned recovery codes are
// single-use; this is the only time the authority reveals them.
func (s *Service) VerifyTwoFactorSetup(ctx context.Context, code string) ([]string, error) {
	resp, err := s.deps.Fetch.DoJSON(ctx, http.MethodPost, verify2FAPath, map[string]string{"code": code})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyTwoFactorSetup] authority call")
	}
	defer resp.Body.Close()

	if err := checkFailure(resp); err != nil {
		return nil, err
	}
	var body verify2FAResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	if len(body.BackupCodes) == 0 {
		return nil, &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return body.BackupCodes, nil
}

// DisableTwoFactor removes the second factor. Password re-entry is
// required as proof of possession.
func (s *Service) DisableTwoFactor(ctx context.Context, password string) error {
	resp, err := s.deps.Fetch.DoJSON(ctx, http.MethodPost, disable2FAPath, map[string]string{"password": password})
	if err != nil {
		return errors.Wrap(err, "[Service.DisableTwoFactor] authority call")
	}
	defer resp.Body.Close()
	return checkFailure(resp)
}
