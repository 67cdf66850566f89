package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"homechat/internal/auth"
	"homechat/internal/config"
	"homechat/internal/database"
	"homechat/internal/models"
	"homechat/internal/repository"
)

// Seeds a family: two users, a contact pair, the default lobby everyone
// belongs to, and prints tokens usable against /api/v1/ws?token=...
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.NewMySQLConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to MySQL:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate schema:", err)
	}

	users := []models.User{
		{Username: "alice", Email: "alice@home.local"},
		{Username: "bob", Email: "bob@home.local"},
	}
	for i := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("Failed to hash password:", err)
		}
		users[i].Password = string(hash)
		if err := db.Create(&users[i]).Error; err != nil {
			log.Fatal("Failed to create user:", err)
		}
	}

	ctx := context.Background()
	roomRepo := repository.NewRoomRepository(db)
	lobby := &models.Room{Name: "Home", Kind: "lobby", OwnerID: users[0].ID}
	if err := roomRepo.Create(ctx, lobby, []uint{users[0].ID, users[1].ID}); err != nil {
		log.Fatal("Failed to create lobby:", err)
	}

	contactRepo := repository.NewContactRepository(db)
	if err := contactRepo.AddContact(ctx, users[0].ID, users[1].ID); err != nil {
		log.Fatal("Failed to create contact:", err)
	}

	for _, u := range users {
		token, err := auth.IssueToken(cfg.JWT.Secret, auth.Claims{
			UserID:   u.ID,
			Username: u.Username,
		}, 30*24*time.Hour)
		if err != nil {
			log.Fatal("Failed to issue token:", err)
		}
		fmt.Printf("%s: %s\n", u.Username, token)
	}
}
