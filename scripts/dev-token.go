package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/geocheck/attendance-server-go/internal/auth"
	"github.com/geocheck/attendance-server-go/internal/model"
)

func main() {
	id := flag.String("id", "", "subject id")
	name := flag.String("name", "", "display name")
	role := flag.String("role", string(model.RoleParticipant), "presenter, participant or admin")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	key := os.Getenv("JWT_SIGNING_KEY")
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "attendance"
	}

	identity := model.Identity{ID: *id, Name: *name, Role: model.Role(*role)}
	if key == "" || identity.ID == "" || identity.Name == "" || !identity.Role.Valid() {
		fmt.Fprintf(os.Stderr, "Usage: JWT_SIGNING_KEY=... go run scripts/dev-token.go -id <id> -name <name> [-role presenter|participant|admin] [-ttl 12h]\n")
		os.Exit(1)
	}

	token, err := auth.Issue(key, issuer, identity, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
