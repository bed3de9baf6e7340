// password_reset.go — обработчик POST /api/v1/admin/reset-password.
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/service"
)

// resetPasswordRequest — тело запроса. Ровно одно из targetUserId, targetEmail.
type resetPasswordRequest struct {
	TargetUserID    *openapi_types.UUID  `json:"targetUserId,omitempty"`
	TargetEmail     *openapi_types.Email `json:"targetEmail,omitempty"`
	NewPassword     *string              `json:"newPassword,omitempty"`
	ForceMustChange *bool                `json:"forceMustChange,omitempty"`
	AdminSecret     *string              `json:"adminSecret,omitempty"`
}

type resetPasswordResponse struct {
	Success           bool   `json:"success"`
	TargetEmail       string `json:"targetEmail"`
	TemporaryPassword string `json:"temporaryPassword,omitempty"`
}

// ResetPassword выполняет двухфазный сброс пароля.
// Отказ prepare — 422 PREPARE_REJECTED с причиной.
func (h *APIHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	decodeErr := decodeJSON(r, &req)

	audit := newAuditEntry(model.ActionResetPassword, deref(req.AdminSecret))
	if decodeErr != nil {
		h.fail(w, r, audit, invalid("некорректный JSON в теле запроса"))
		return
	}

	in := service.ResetInput{ForceMustChange: req.ForceMustChange}
	if req.TargetUserID != nil {
		in.TargetUserID = req.TargetUserID.String()
	}
	if req.TargetEmail != nil {
		in.TargetEmail = string(*req.TargetEmail)
	}
	in.NewPassword = deref(req.NewPassword)

	audit.targetID = in.TargetUserID
	if in.TargetEmail != "" {
		audit.metadata["target_email"] = in.TargetEmail
	}
	if (in.TargetUserID == "") == (in.TargetEmail == "") {
		h.fail(w, r, audit, invalid("укажите ровно одно из targetUserId или targetEmail"))
		return
	}

	actx, err := h.gate.Authorize(r, model.ActionResetPassword, deref(req.AdminSecret))
	if err != nil {
		h.fail(w, r, audit, err)
		return
	}
	audit.authorized(actx)
	in.Actor = actx

	res, err := h.resets.Reset(r.Context(), in)
	if res != nil {
		if res.Target != nil {
			audit.targetID = res.Target.ID
		}
		audit.metadata["state"] = string(res.State)
		if res.Reason != "" {
			audit.metadata["reason"] = res.Reason
		}
	}
	if err != nil {
		h.fail(w, r, audit, err)
		return
	}

	audit.metadata["identity_id"] = res.Exec.IdentityID
	audit.metadata["must_change_password"] = res.Exec.MustChangePassword
	audit.metadata["generated_password"] = res.Exec.TemporaryPassword != ""
	h.record(r.Context(), audit, nil)

	writeJSON(w, http.StatusOK, resetPasswordResponse{
		Success:           true,
		TargetEmail:       res.Exec.TargetEmail,
		TemporaryPassword: res.Exec.TemporaryPassword,
	})
}
