// Package config handles loading and validating lightswitch configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of the device list and store selection
//   - Default value handling
//
// Security Considerations:
//   - The Firebase service-account key should come from FIREBASE_SERVICE_ACCOUNT
//     or a file with restricted permissions (0600), never from a committed YAML file
//   - Store credentials are not checked at load time; a missing key produces
//     an unconfigured store and 500 responses instead of a crash
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.DeviceKeys())
package config
