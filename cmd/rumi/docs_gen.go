package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	cobraDoc "github.com/spf13/cobra/doc"

	"github.com/dotsetgreg/rumi/pkg/channels"
	"github.com/dotsetgreg/rumi/pkg/config"
)

func newDocsCommand(rootFactory func() *cobra.Command) *cobra.Command {
	docsRoot := &cobra.Command{
		Use:    "docs",
		Short:  "Internal docs maintenance commands",
		Hidden: true,
	}

	var (
		outputDir string
		checkOnly bool
	)

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate CLI, config and slash command reference docs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outputDir) == "" {
				return fmt.Errorf("--output must not be empty")
			}
			return generateDocumentation(rootFactory, outputDir, checkOnly)
		},
	}
	gen.Flags().StringVar(&outputDir, "output", "docs", "Docs directory root")
	gen.Flags().BoolVar(&checkOnly, "check", false, "Fail if generated docs are out of date")

	docsRoot.AddCommand(gen)
	return docsRoot
}

func generateDocumentation(rootFactory func() *cobra.Command, outputDir string, checkOnly bool) error {
	tmpDir, err := os.MkdirTemp("", "rumi-docs-*")
	if err != nil {
		return fmt.Errorf("create temp docs dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := writeReferences(rootFactory, tmpDir); err != nil {
		return err
	}

	files, err := listFiles(tmpDir)
	if err != nil {
		return err
	}
	for _, rel := range files {
		generated, err := os.ReadFile(filepath.Join(tmpDir, rel))
		if err != nil {
			return err
		}
		target := filepath.Join(outputDir, rel)
		if checkOnly {
			existing, err := os.ReadFile(target)
			if err != nil || !bytes.Equal(existing, generated) {
				return fmt.Errorf("docs out of date: %s; run `rumi docs generate`", rel)
			}
			continue
		}
		if err := writeTextFile(target, string(generated)); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

func writeReferences(rootFactory func() *cobra.Command, outDir string) error {
	root := rootFactory()
	disableAutoGenTag(root)

	cliDir := filepath.Join(outDir, "reference", "cli")
	if err := os.MkdirAll(cliDir, 0o755); err != nil {
		return fmt.Errorf("create cli docs dir: %w", err)
	}
	prepender := func(filename string) string {
		title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return fmt.Sprintf("# %s\n\n", strings.ReplaceAll(title, "_", " "))
	}
	linkHandler := func(name string) string { return name }
	if err := cobraDoc.GenMarkdownTreeCustom(root, cliDir, prepender, linkHandler); err != nil {
		return fmt.Errorf("generate cli markdown docs: %w", err)
	}

	manDir := filepath.Join(outDir, "reference", "man")
	if err := os.MkdirAll(manDir, 0o755); err != nil {
		return fmt.Errorf("create man docs dir: %w", err)
	}
	header := &cobraDoc.GenManHeader{Title: "RUMI", Section: "1", Source: appName}
	if err := cobraDoc.GenManTree(root, header, manDir); err != nil {
		return fmt.Errorf("generate man pages: %w", err)
	}

	configRef, err := buildConfigReference()
	if err != nil {
		return err
	}
	if err := writeTextFile(filepath.Join(outDir, "reference", "config.md"), configRef); err != nil {
		return err
	}
	return writeTextFile(filepath.Join(outDir, "reference", "slash-commands.md"), buildSlashCommandReference())
}

func disableAutoGenTag(cmd *cobra.Command) {
	cmd.DisableAutoGenTag = true
	for _, child := range cmd.Commands() {
		disableAutoGenTag(child)
	}
}

// configKey is one leaf setting of config.Config.
type configKey struct {
	key, kind, env, def string
}

func buildConfigReference() (string, error) {
	var keys []configKey
	walkConfig(reflect.ValueOf(config.DefaultConfig()).Elem(), "", &keys)
	sort.Slice(keys, func(i, j int) bool { return keys[i].key < keys[j].key })

	var b strings.Builder
	b.WriteString("# Configuration\n\n")
	b.WriteString("Keys are read from `~/.rumi/config.json`; environment variables override them.\n\n")
	b.WriteString("| Key | Type | Environment | Default |\n")
	b.WriteString("|-----|------|-------------|---------|\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", k.key, k.kind, code(k.env), code(k.def))
	}
	return b.String(), nil
}

// walkConfig collects leaf fields keyed by their dotted json path, with
// the value in v as the default.
func walkConfig(v reflect.Value, prefix string, out *[]configKey) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if !field.IsExported() || name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct {
			walkConfig(fv, name, out)
			continue
		}
		encoded, err := json.Marshal(fv.Interface())
		if err != nil {
			encoded = []byte(fmt.Sprint(fv.Interface()))
		}
		*out = append(*out, configKey{
			key:  name,
			kind: kindName(fv.Type()),
			env:  field.Tag.Get("env"),
			def:  string(encoded),
		})
	}
}

func kindName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice:
		return "list of " + kindName(t.Elem())
	default:
		return t.Kind().String()
	}
}

func buildSlashCommandReference() string {
	var b strings.Builder
	b.WriteString("# Slash Commands\n\n")
	for _, cmd := range channels.SlashCommands() {
		fmt.Fprintf(&b, "## /%s\n\n%s\n\n", cmd.Name, cmd.Description)
		if len(cmd.Options) == 0 {
			continue
		}
		b.WriteString("| Option | Description | Choices |\n")
		b.WriteString("| --- | --- | --- |\n")
		for _, opt := range cmd.Options {
			choices := make([]string, 0, len(opt.Choices))
			for _, c := range opt.Choices {
				choices = append(choices, code(fmt.Sprint(c.Value)))
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", opt.Name, opt.Description, strings.Join(choices, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// code wraps v in backticks, or renders a dash when it is empty.
func code(v string) string {
	if v == "" || v == `""` {
		return "-"
	}
	return "`" + v + "`"
}

func writeTextFile(path string, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	sort.Strings(files)
	return files, err
}
