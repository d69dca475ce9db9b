// Package config loads chatsync configuration.
//
// The configuration is stored in chatsync.json (or chatsync.yaml) in the
// working directory or one of its parents. Environment variables prefixed
// with CHATSYNC_ override file values; command line flags override both.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 8080,
//	    "allowedOrigins": ["https://chat.example.com"],
//	    "maxSessions": 1000,
//	    "writeTimeout": "10s"
//	  },
//	  "storage": {
//	    "driver": "sqlite",
//	    "dsn": "chatsync.db"
//	  },
//	  "files": {
//	    "bucket": "chat-files",
//	    "region": "us-east-1",
//	    "urlExpiry": "15m"
//	  },
//	  "app": { "title": "Chat" },
//	  "log": { "level": "info", "format": "json" }
//	}
//
// # Environment
//
//	CHATSYNC_SERVER_PORT=9000
//	CHATSYNC_STORAGE_DRIVER=memory
//	CHATSYNC_SERVER_ALLOWED_ORIGINS=https://a.example,https://b.example
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ApplyEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Listening on", cfg.Address())
package config
