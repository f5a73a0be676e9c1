package main

import (
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"codeberg.org/collabkit/engine/internal/auth"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	collaboratorID := uuid.New().String()
	displayName := "Test Collaborator"

	if len(os.Args) > 1 {
		collaboratorID = os.Args[1]
	}
	if len(os.Args) > 2 {
		displayName = os.Args[2]
	}

	credential, err := auth.GenerateCredential(collaboratorID, displayName)
	if err != nil {
		log.Fatalf("Failed to generate credential: %v", err)
	}

	fmt.Printf("✅ Credential for %s (%s):\n\n%s\n\n", displayName, collaboratorID, credential)
	fmt.Println("Use it with:")
	fmt.Printf("  export COLLAB_COLLABORATOR_ID=%s\n", collaboratorID)
	fmt.Printf("  export COLLAB_CREDENTIAL=%s\n", credential)
}
