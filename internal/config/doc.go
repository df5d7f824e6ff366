// Package config provides configuration parsing for the tabsyncd binary.
//
// The configuration is a YAML file, conventionally tabsyncd.yaml. String
// values support environment variable substitution with ${VAR} and
// ${VAR:-default} syntax, so secrets stay out of the file itself.
//
// # Configuration File Structure
//
//	listen: ":8080"
//	path_prefix: /tabsync
//
//	log:
//	  level: info
//	  format: json
//
//	static:
//	  dir: ./public
//	  prefix: /
//	  cache: production
//
//	session:
//	  retention_window: 5m
//	  heartbeat_interval: 30s
//	  max_sessions: 1000
//
//	security:
//	  token_secret: ${TABSYNC_TOKEN_SECRET}
//	  allowed_origins:
//	    - https://app.example.com
//
//	mirror:
//	  backend: s3
//	  bucket: my-mirrors
//	  prefix: tabsync/
//	  region: eu-west-1
//	  strategy: client-wins
//	  persist_interval: 30s
//
//	metrics: true
//
// # Usage
//
//	cfg, err := config.Load("tabsyncd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listen:", cfg.Listen)
package config
