// cmd/tools/registry-check/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"grant-assistant/pkg/registry"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

var registryPath string

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{validateCmd, listCmd, updateCmd} {
		fs.StringVar(&registryPath, "path", "", "Path to a template registry file (empty uses the built-in one)")
	}

	idUpdate := updateCmd.String("id", "", "Template ID to update")
	field := updateCmd.String("field", "", "Field to update (name, callKeyword, budgetRange, priorityCountry, defaultFundingRate)")
	value := updateCmd.String("value", "", "New value for the field")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := listTemplates(); err != nil {
			fmt.Printf("Error listing templates: %v\n", err)
			os.Exit(1)
		}

	case "update":
		updateCmd.Parse(os.Args[2:])
		if registryPath == "" || *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: path, id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateTemplate(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated template %s, field %s to %s\n", *idUpdate, *field, *value)

	case "help":
		fallthrough
	default:
		help()
	}
}

func load() (*registry.TemplateRegistry, error) {
	if registryPath == "" {
		return registry.Default()
	}
	return registry.LoadFile(registryPath)
}

func validateRegistry() error {
	reg, err := load()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if problems := registry.Validate(reg); len(problems) > 0 {
		for _, p := range problems {
			fmt.Println("  -", p)
		}
		return fmt.Errorf("%d problem(s) found", len(problems))
	}

	subsections := 0
	for i := range reg.Templates {
		subsections += reg.Templates[i].SubsectionCount()
	}
	fmt.Printf("Registry validation passed. Found %d templates, %d subsections.\n", len(reg.Templates), subsections)
	return nil
}

func listTemplates() error {
	reg, err := load()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Programme", "Action", "Budget", "Priority country", "Subsections"})
	for i := range reg.Templates {
		tpl := &reg.Templates[i]
		t.AppendRow(table.Row{tpl.ID, tpl.ProgramType, tpl.ActionType, tpl.BudgetRange, tpl.PriorityCountry, tpl.SubsectionCount()})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func updateTemplate(id, field, value string) error {
	reg, err := registry.LoadFile(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	tpl, ok := reg.Find(id)
	if !ok {
		return fmt.Errorf("template with ID %s not found", id)
	}
	switch field {
	case "name":
		tpl.Name = value
	case "callKeyword":
		tpl.CallKeyword = value
	case "budgetRange":
		if _, _, ok := registry.BudgetBounds(value); !ok {
			return fmt.Errorf("invalid budget range: %s", value)
		}
		tpl.BudgetRange = value
	case "priorityCountry":
		tpl.PriorityCountry = value
	case "defaultFundingRate":
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil || rate <= 0 || rate > 100 {
			return fmt.Errorf("invalid funding rate: %s", value)
		}
		tpl.DefaultFundingRate = rate
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	if problems := registry.Validate(reg); len(problems) > 0 {
		return fmt.Errorf("update leaves the registry invalid: %v", problems)
	}
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, registryPath)
}

// saveRegistry handles saving the registry to file
func saveRegistry(reg *registry.TemplateRegistry, path string) error {
	data, err := yaml.Marshal(reg)
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-check <command> [flags]

Commands:
  validate  Validate a template registry file
  list      List the templates of a registry
  update    Update one field of a template
  help      Show this help message

Examples:
  registry-check validate -path configs/templates.yaml
  registry-check list
  registry-check update -path configs/templates.yaml -id life-sap -field defaultFundingRate -value 60

Use 'registry-check <command> -h' for more information about a command.
` + "\n")
}
