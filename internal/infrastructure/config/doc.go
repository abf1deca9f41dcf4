// Package config handles loading and validating telemetry core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MQTT_URL, DB_HOST/DB_USER/DB_PASS/DB_NAME, PORT, DEBUG, NODE_ENV)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker/database credentials) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.URL)
package config
