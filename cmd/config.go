package main

import "time"

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	Host string `env:"HOST,default=localhost"`
	Port int    `env:"PORT,default=8080"`

	RouterBufferSize     int           `env:"ROUTER_BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=3s"`
	TokenDuration        time.Duration `env:"TOKEN_DURATION,default=24h"`

	ModerationCharReplacement rune `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`

	APIRatePerSecond    float64 `env:"API_RATE_PER_SECOND,default=20"`
	APIRateBurst        int     `env:"API_RATE_BURST,default=40"`
	CreateRatePerSecond float64 `env:"CREATE_RATE_PER_SECOND,default=1"`
	CreateRateBurst     int     `env:"CREATE_RATE_BURST,default=5"`
}
