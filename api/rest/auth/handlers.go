package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	internalauth "codeberg.org/collabkit/engine/internal/auth"
	"codeberg.org/collabkit/engine/internal/errors"
	"codeberg.org/collabkit/engine/internal/logger"
)

// mints a signed credential for a collaborator. Identity verification is
// expected to happen upstream (SSO proxy, deploy-time provisioning); this
// endpoint only signs.
func CredentialHandler(c *gin.Context) {
	var req CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.ValidationError(c, err)
		return
	}

	credential, err := internalauth.GenerateCredential(req.CollaboratorID, req.DisplayName)
	if err != nil {
		errors.InternalError(c, "failed to mint credential", err)
		return
	}

	logger.Info("credential minted", "collaborator_id", req.CollaboratorID)

	c.JSON(http.StatusOK, CredentialResponse{
		Credential:     credential,
		CollaboratorID: req.CollaboratorID,
	})
}
