// Package config handles configuration loading for chatsync.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHATSYNC_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven-chat/config.yaml
//  3. ~/.config/coven-chat/config.yaml
//
// A missing file is not an error; every field has a default. Files ending
// in .toml are read as TOML, everything else as YAML.
//
// # Environment Variable Expansion
//
//	auth:
//	  token: "${CHATSYNC_TOKEN}"
//
// # Sections
//
//	server:
//	  api_url: "https://chat.example.com/api"
//	  socket_url: "https://chat.example.com/chat"
//	  namespace: "/chat"      # optional, defaults to the socket_url path
//	  rate_limit: 10          # REST requests per second
//
//	auth:
//	  token: ""
//	  token_file: "~/.config/coven-chat/token"
//
//	channel:
//	  reconnect_min: "500ms"
//	  reconnect_max: "30s"
//	  handshake_timeout: "10s"
//	  dedupe_window: "2s"     # "0s" disables duplicate suppression
//
//	history:
//	  page_size: 50
//	  max_pending: 1000
//
//	journal:
//	  enabled: false
//	  path: "~/.local/share/coven-chat/journal.db"
//	  retention: "720h"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # optional JSON log file
//
//	metrics:
//	  enabled: false
//	  addr: "127.0.0.1:9464"
//
// Durations use time.ParseDuration syntax.
package config
