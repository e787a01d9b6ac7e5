// Package component provides the core component infrastructure for the
// gateway, enabling dynamic component discovery, registration, lifecycle
// management, and instance creation.
//
// # Overview
//
// The component package defines fundamental abstractions for all gateway
// components, supporting two component types: gateways (serve external
// clients over HTTP and WebSocket) and services (internal infrastructure
// such as the metrics endpoint). Components are self-describing units that
// can be discovered at runtime, configured through schemas, and managed
// through their lifecycle.
//
// The Registry serves as the central component management system, handling
// both factory registration and instance management with thread-safe
// operations and proper lifecycle control.
//
// # Component Registration Pattern
//
// The gateway uses EXPLICIT registration rather than init() self-registration.
// This provides:
//   - Testability: Can create isolated registries for testing
//   - Explicitness: Clear component dependency graph
//   - Control: Main application controls what gets registered
//   - No side effects: No global state modification during package initialization
//
// Registration Flow:
//
//  1. Each component package exports a Register(*Registry) error function
//  2. componentregistry.RegisterAll() orchestrates all registrations
//  3. main.go explicitly calls RegisterAll() with a created Registry
//  4. Components are now available for instantiation
//
// Example component registration:
//
//	// In gateway/register.go
//	func Register(registry *component.Registry) error {
//		return registry.RegisterWithConfig(component.RegistrationConfig{
//			Name:        "gateway",
//			Factory:     NewServer,
//			Schema:      serverSchema,
//			Type:        "gateway",
//			Protocol:    "http",
//			Domain:      "network",
//			Description: "HTTP and WebSocket gateway for JetStream",
//			Version:     "1.0.0",
//		})
//	}
//
//	// In componentregistry/register.go
//	func RegisterAll(registry *component.Registry) error {
//		if err := gateway.Register(registry); err != nil {
//			return err
//		}
//		// ... more registrations
//		return nil
//	}
//
//	// In cmd/natsgate/main.go
//	registry := component.NewRegistry()
//	if err := componentregistry.RegisterAll(registry); err != nil {
//		log.Fatal(err)
//	}
//
// # Quick Start
//
// Creating and using a component:
//
//	// Create component registry and register all components
//	registry := component.NewRegistry()
//	if err := componentregistry.RegisterAll(registry); err != nil {
//		return err
//	}
//
//	// Create component configuration
//	config := component.Config{
//		Type:    component.TypeGateway,
//		Name:    "gateway",
//		Enabled: true,
//		Config:  json.RawMessage(`{"port": 8080}`),
//	}
//
//	// Prepare component dependencies
//	deps := component.Dependencies{
//		NATSClient: natsClient,
//		Logger:     slog.Default(),
//	}
//
//	// Create component instance
//	instance, err := registry.CreateComponent("gateway-main", config, deps)
//	if err != nil {
//		return err
//	}
//
//	// Component is now ready to use
//	meta := instance.Meta()
//	health := instance.Health()
//
// # Configuration Schema
//
// Components define their configuration through ConfigSchema, enabling:
//   - Discovery APIs that expose configuration contracts to clients
//   - Validation before factory execution with structured field errors
//   - Property categorization (basic vs advanced)
//   - Default value documentation
//
// Schemas are generated from struct tags at package init:
//
//	type Config struct {
//		Port int `json:"port" schema:"type:int,description:Listen port,min:1,max:65535,default:8080,category:basic"`
//	}
//
//	var serverSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))
//
// The Registry validates raw configuration against the registered schema
// before the factory runs, so factories only see configs that satisfy the
// declared constraints:
//
//	config := map[string]any{
//		"port": 99999, // Exceeds maximum
//	}
//
//	errors := component.ValidateConfig(config, schema)
//	// Returns: [{Field: "port", Message: "Field \"port\" must be <= 65535", Code: "max"}]
//
// Components without schemas still work - validation is skipped when the
// schema has no properties.
//
// # Factory Pattern
//
// Component factories follow a consistent signature:
//
//	type Factory func(rawConfig json.RawMessage, deps Dependencies) (Discoverable, error)
//
// Factories:
//   - Receive raw JSON configuration and parse it themselves (SafeUnmarshal)
//   - Validate configuration before creating instances
//   - Return initialized components ready for lifecycle management
//   - Never perform I/O; that belongs in Start()
//
// # Registry Thread Safety
//
// All Registry operations are thread-safe:
//   - Factory registration uses write locks
//   - Component creation uses read locks for factory lookup
//   - Instance tracking uses write locks
//   - Listing operations return copies
//
// # Testing
//
// The explicit registration pattern makes testing straightforward: create an
// isolated registry per test, register only the factories the test needs,
// and inject unconnected or containerized NATS clients through Dependencies.
// Components implementing LifecycleComponent can reuse StandardLifecycleTests
// for state transition, concurrency, and leak coverage.
//
// # Integration Points
//
// Dependencies:
//   - natsclient: Required for JetStream access
//   - metric: Optional for Prometheus metrics
//   - log/slog: Optional for structured logging (defaults to slog.Default())
//
// Used By:
//   - service: Runner uses Registry for component lifecycle
//   - componentregistry: Orchestrates component registration
//   - cmd/natsgate: Application entry point creates and populates Registry
package component
