package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	HTTPAddr  string
	MySQLDSN  string
	RedisAddr string

	ItemID          string
	ItemName        string
	ItemDescription string
	ItemImageURL    string
	InitialStock    int
}

func Load() Config {
	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		MySQLDSN:        getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/carddrop?parseTime=true"),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		ItemID:          getenv("ITEM_ID", "charizard-1st-ed"),
		ItemName:        getenv("ITEM_NAME", "1st Edition Charizard"),
		ItemDescription: getenv("ITEM_DESCRIPTION", "The holy grail of Pokémon cards. PSA 10 Gem Mint."),
		ItemImageURL:    getenv("ITEM_IMAGE_URL", "https://placehold.co/400x600/2D3748/E2E8F0?text=Card"),
		InitialStock:    getenvInt("INITIAL_STOCK", 1),
	}

	log.Printf("config: HTTP_ADDR=%s ITEM_ID=%s INITIAL_STOCK=%d", cfg.HTTPAddr, cfg.ItemID, cfg.InitialStock)
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
