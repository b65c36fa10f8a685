package session

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

const (
	verifyEmailPath     = "/auth/verify-email"
	forgotPasswordPath  = "/auth/forgot-password"
	resetPasswordPath   = "/auth/reset-password"
	resetPINRequestPath = "/auth/reset-pin?action=request"
	resetPINPath        = "/auth/reset-pin?action=reset"
	changePasswordPath  = "/auth/change-password"
)

// VerifyEmail confirms an account with the token mailed to it, usually
// lifted from the landing URL by ExtractFlowToken.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	resp, err := s.postJSON(ctx, verifyEmailPath, map[string]string{"token": token})
	if err != nil {
		return errors.Wrap(err, "[Service.VerifyEmail] authority call")
	}
	defer resp.Body.Close()
	return checkFailure(resp)
}

// ForgotPassword asks the authority to mail a reset token. The authority
// answers 2xx whether or not the account exists; no enumeration signal
// leaks through this call.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	resp, err := s.postJSON(ctx, forgotPasswordPath, map[string]string{
		"email":    email,
		"tenantId": s.deps.Binding.TenantID(),
	})
	if err != nil {
		return errors.Wrap(err, "[Service.ForgotPassword] authority call")
	}
	defer resp.Body.Close()
	return checkFailure(resp)
}

// ResetPassword redeems a mailed reset token for a new password.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	resp, err := s.postJSON(ctx, resetPasswordPath, map[string]string{
		"token":    token,
		"password": password,
	})
	if err != nil {
		return errors.Wrap(err, "[Service.ResetPassword] authority call")
	}
	defer resp.Body.Close()
	return checkFailure(resp)
}

// RequestPINReset starts PIN recovery for a username. Always 2xx, as
// with ForgotPassword.
func (s *Service) RequestPINReset(ctx context.Context, email, username string) error {
	resp, err := s.postJSON(ctx, resetPINRequestPath, map[string]string{
		"email":    email,
		"username": username,
		"tenantId": s.deps.Binding.TenantID(),
	})
	if err != nil {
		return errors.Wrap(err, "[Service.RequestPINReset] authority call")
	}
	defer resp.Body.Close()
	return checkFailure(resp)
}

// ResetPIN redeems a mailed reset token for a new six-digit PIN.
func (s *Service) ResetPIN(ctx context.Context, token, pin string) error {
	resp, err := s.postJSON(ctx, resetPINPath, map[string]string{
		"token":    token,
		"pin":      pin,
		"tenantId": s.deps.Binding.TenantID(),
	})
	if err != nil {
		return errors.Wrap(err, "[Service.ResetPIN] authority call")
	}
	defer resp.Body.Close()
	return checkFailure(resp)
}

// ChangePassword replaces the password of the authenticated account. The
// current password is re-entered as proof of possession. Credentials are
// unaffected.
func (s *Service) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	resp, err := s.deps.Fetch.DoJSON(ctx, http.MethodPost, changePasswordPath, map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	})
	if err != nil {
		return errors.Wrap(err, "[Service.ChangePassword] authority call")
	}
	defer resp.Body.Close()
	return checkFailure(resp)
}
