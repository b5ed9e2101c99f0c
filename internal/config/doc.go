// Package config loads and validates the buildgate configuration.
//
// # Configuration Precedence
//
// Values are resolved in the following order (highest to lowest priority):
//
//  1. CLI flags (--output-dir, --parallelism, --format, --integration, etc.)
//  2. Environment variables (BUILDGATE_OUTPUT_DIR, BUILDGATE_PARALLELISM, ...)
//  3. YAML config file (.buildgate.yaml in the working directory or
//     ~/.config/buildgate/.buildgate.yaml)
//  4. Hardcoded defaults
//
// Rules, exclusions and the integration predicate come from the file only.
//
// # Example
//
//	packages: ["./..."]
//	parallelism: 4
//	integration:
//	  patterns: ["*IntegrationTest", "*IT"]
//	  tags: ["integration"]
//	groups:
//	  integration:
//	    verbose: true
//	coverage:
//	  rules:
//	    - metric: LINE
//	      minimum: 0.75
//	    - metric: BRANCH
//	      minimum: 0.70
//	  exclusions: ["**/config/**", "**/dto/**"]
//
// Unknown keys are rejected, and every invalid setting is reported in a single
// *Error.
package config
