// users.go — обработчик POST /api/v1/admin/users.
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/fleetops/identity-admin/internal/domain/model"
	"github.com/bigkaa/fleetops/identity-admin/internal/service"
)

type createUserRequest struct {
	Email          openapi_types.Email `json:"email"`
	Role           string              `json:"role"`
	FirstName      *string             `json:"firstName,omitempty"`
	LastName       *string             `json:"lastName,omitempty"`
	OrganizationID *openapi_types.UUID `json:"organizationId,omitempty"`
	Password       *string             `json:"password,omitempty"`
	AdminSecret    *string             `json:"adminSecret,omitempty"`
}

type createUserResponse struct {
	Success           bool   `json:"success"`
	ProfileID         string `json:"profileId"`
	UserID            string `json:"userId"`
	TemporaryPassword string `json:"temporaryPassword,omitempty"`
}

// CreateUser создаёт профиль и identity. При сбое создания identity
// профиль удаляется и клиент получает ошибку.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	decodeErr := decodeJSON(r, &req)

	audit := newAuditEntry(model.ActionCreateUser, deref(req.AdminSecret))
	if decodeErr != nil {
		h.fail(w, r, audit, invalid("некорректный JSON в теле запроса"))
		return
	}

	in := service.CreateUserInput{
		Email:     string(req.Email),
		Role:      req.Role,
		FirstName: deref(req.FirstName),
		LastName:  deref(req.LastName),
		Password:  deref(req.Password),
	}
	if req.OrganizationID != nil {
		org := req.OrganizationID.String()
		in.OrganizationID = &org
	}

	audit.metadata["email"] = in.Email
	audit.metadata["role"] = in.Role

	actx, err := h.gate.Authorize(r, model.ActionCreateUser, deref(req.AdminSecret))
	if err != nil {
		h.fail(w, r, audit, err)
		return
	}
	audit.authorized(actx)

	res, err := h.users.CreateUser(r.Context(), in)
	if err != nil {
		h.fail(w, r, audit, err)
		return
	}

	audit.targetID = res.ProfileID
	audit.metadata["identity_id"] = res.IdentityID
	audit.metadata["identity_created"] = res.Created
	h.record(r.Context(), audit, nil)

	writeJSON(w, http.StatusCreated, createUserResponse{
		Success:           true,
		ProfileID:         res.ProfileID,
		UserID:            res.IdentityID,
		TemporaryPassword: res.TemporaryPassword,
	})
}
