package auth

// CredentialRequest asks for a signed collaborator credential
type CredentialRequest struct {
	CollaboratorID string `json:"collaborator_id" binding:"required,max=100"`
	DisplayName    string `json:"display_name" binding:"max=100"`
}

// CredentialResponse carries the minted credential
type CredentialResponse struct {
	Credential     string `json:"credential"`
	CollaboratorID string `json:"collaborator_id"`
}
