// Command schema-exporter writes the gateway's machine-readable
// contract artifacts: one draft-07 JSON Schema per registered component
// type under schemas/, and the OpenAPI document under specs/. Config
// UIs and deployment tooling consume the schemas; API clients consume
// the OpenAPI document.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/c360/natsgate/component"
	"github.com/c360/natsgate/componentregistry"
	"github.com/c360/natsgate/gateway"
)

func main() {
	outDir := flag.String("out", "./schemas", "Output directory for component schemas")
	openapiOut := flag.String("openapi", "./specs/openapi.v3.yaml", "Output path for the OpenAPI document (empty to skip)")
	version := flag.String("version", "1.0.0", "API version stamped into the OpenAPI document")
	flag.Parse()

	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		log.Fatalf("Failed to register components: %v", err)
	}

	factories := registry.ListFactories()
	log.Printf("Exporting %d component schemas to %s", len(factories), *outDir)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	for name, registration := range factories {
		schema := exportSchema(name, registration)

		if err := validateSchema(schema); err != nil {
			log.Fatalf("Schema for %s is invalid: %v", name, err)
		}

		outFile := filepath.Join(*outDir, name+".v1.json")
		if err := writeSchema(outFile, schema); err != nil {
			log.Fatalf("Failed to write schema for %s: %v", name, err)
		}
		log.Printf("  wrote %s", outFile)
	}

	if *openapiOut != "" {
		if err := os.MkdirAll(filepath.Dir(*openapiOut), 0o755); err != nil {
			log.Fatalf("Failed to create OpenAPI directory: %v", err)
		}
		if err := gateway.WriteOpenAPIFile(*openapiOut, *version); err != nil {
			log.Fatalf("Failed to write OpenAPI document: %v", err)
		}
		log.Printf("  wrote %s", *openapiOut)
	}
}
