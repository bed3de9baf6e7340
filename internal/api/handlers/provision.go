// provision.go — обработчик POST /api/v1/admin/provision-identity.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/service"
)

// provisionIdentityRequest — тело запроса. Хотя бы одно из email, profileId.
type provisionIdentityRequest struct {
	Email       *openapi_types.Email `json:"email,omitempty"`
	ProfileID   *openapi_types.UUID  `json:"profileId,omitempty"`
	Password    *string              `json:"password,omitempty"`
	AdminSecret *string              `json:"adminSecret,omitempty"`
}

type provisionIdentityResponse struct {
	Success           bool   `json:"success"`
	UserID            string `json:"userId"`
	Created           bool   `json:"created"`
	TemporaryPassword string `json:"temporaryPassword,omitempty"`
	Message           string `json:"message"`
}

// ProvisionIdentity обеспечивает наличие identity для профиля.
// Повторный вызов для того же профиля возвращает created=false.
// Identity всегда создаётся на email профиля; email запроса только
// выбирает профиль или должен с ним совпадать.
func (h *APIHandler) ProvisionIdentity(w http.ResponseWriter, r *http.Request) {
	var req provisionIdentityRequest
	decodeErr := decodeJSON(r, &req)

	audit := newAuditEntry(model.ActionProvisionIdentity, deref(req.AdminSecret))
	if decodeErr != nil {
		h.fail(w, r, audit, invalid("некорректный JSON в теле запроса"))
		return
	}

	var email, profileID string
	if req.Email != nil {
		email = strings.TrimSpace(string(*req.Email))
	}
	if req.ProfileID != nil {
		profileID = req.ProfileID.String()
	}
	audit.targetID = profileID
	if email != "" {
		audit.metadata["email"] = email
	}
	if email == "" && profileID == "" {
		h.fail(w, r, audit, invalid("укажите email или profileId"))
		return
	}

	actx, err := h.gate.Authorize(r, model.ActionProvisionIdentity, deref(req.AdminSecret))
	if err != nil {
		h.fail(w, r, audit, err)
		return
	}
	audit.authorized(actx)

	profile, err := h.provisioner.ResolveTarget(r.Context(), email, profileID)
	if err != nil {
		h.fail(w, r, audit, err)
		return
	}
	audit.targetID = profile.ID
	audit.metadata["email"] = profile.Email

	if email != "" && !strings.EqualFold(email, strings.TrimSpace(profile.Email)) {
		audit.metadata["requested_email"] = email
		h.fail(w, r, audit, invalid("email не совпадает с email профиля"))
		return
	}

	res, err := h.provisioner.EnsureIdentity(r.Context(), service.ProvisionInput{
		Email:     profile.Email,
		ProfileID: profile.ID,
		Password:  deref(req.Password),
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
	})
	if err != nil {
		h.logger.Warn("Не удалось обеспечить identity",
			slog.String("profile_id", profile.ID),
			slog.String("error", err.Error()),
		)
		h.fail(w, r, audit, err)
		return
	}

	audit.metadata["identity_id"] = res.IdentityID
	audit.metadata["created"] = res.Created
	h.record(r.Context(), audit, nil)

	msg := "Identity уже существует, профиль помечен для смены пароля"
	if res.Created {
		msg = "Identity создан"
	}
	writeJSON(w, http.StatusOK, provisionIdentityResponse{
		Success:           true,
		UserID:            res.IdentityID,
		Created:           res.Created,
		TemporaryPassword: res.TemporaryPassword,
		Message:           msg,
	})
}
