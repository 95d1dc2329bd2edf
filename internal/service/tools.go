package service

import (
	"context"
	"fmt"
	"time"

	"hybrid-filesystem/internal/catalog"
	"hybrid-filesystem/internal/command"
	"hybrid-filesystem/internal/fileops"
	"hybrid-filesystem/internal/lineedit"
	"hybrid-filesystem/internal/models"
	"hybrid-filesystem/internal/search"
)

// Toolset holds the components behind the catalog's tools.
type Toolset struct {
	Edit     *lineedit.Engine
	Search   *search.Engine
	Files    *fileops.Service
	Commands *command.Runner
	// SearchMaxFiles caps max_files for search_in_directory.
	SearchMaxFiles int
}

// Register installs a handler for every tool the toolset serves.
func (t *Toolset) Register(d *Dispatcher) error {
	handlers := map[string]HandlerFunc{
		"replace_line_range": t.replaceLineRange,
		"delete_lines":       t.deleteLines,
		"insert_line":        t.insertLine,
		"append_to_file":     t.appendToFile,
		"regex_replace":      t.regexReplace,
		"find_and_replace":   t.findAndReplace,
		"insert_at_position": t.insertAtPosition,
		"patch_apply":        t.patchApply,
		"smart_indent":       t.smartIndent,

		"search_in_file":      t.searchInFile,
		"search_in_directory": t.searchInDirectory,
		"regex_search":        t.regexSearch,
		"count_occurrences":   t.countOccurrences,
		"get_file_section":    t.getFileSection,

		"read_file":    t.readFile,
		"write_file":   t.writeFile,
		"copy_file":    t.copyFile,
		"move_file":    t.moveFile,
		"delete_file":  t.deleteFile,
		"backup_file":  t.backupFile,
		"backup_files": t.backupFiles,
		"file_exists":  t.fileExists,
		"file_info":    t.fileInfo,

		"list_directory":           t.listDirectory,
		"create_directory":         t.createDirectory,
		"create_directories":       t.createDirectories,
		"list_allowed_directories": t.listAllowedDirectories,
		"count_files":              t.countFiles,
		"get_directory_size":       t.directorySize,
		"get_recent_files":         t.recentFiles,
		"analyze_project":          t.analyzeProject,

		"execute_command": t.executeCommand,
	}
	for name, h := range handlers {
		if err := d.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

func editResult(r models.EditReport, err error) (models.ToolResult, error) {
	if err != nil {
		return models.ToolResult{}, err
	}
	return models.ToolResult{Text: r.String(), Data: r}, nil
}

func textResult(s string, err error) (models.ToolResult, error) {
	if err != nil {
		return models.ToolResult{}, err
	}
	return models.ToolResult{Text: s}, nil
}

// endLine returns end_line, defaulting to start_line.
func endLine(a catalog.Args) int {
	if a.Has("end_line") {
		return a.Int("end_line")
	}
	return a.Int("start_line")
}

// --- line editing ---

func (t *Toolset) replaceLineRange(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return editResult(t.Edit.ReplaceLineRange(ctx, a.String("path"), a.Int("start_line"), endLine(a), a.String("content")))
}

func (t *Toolset) deleteLines(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return editResult(t.Edit.DeleteLines(ctx, a.String("path"), a.Int("start_line"), endLine(a)))
}

func (t *Toolset) insertLine(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return editResult(t.Edit.InsertLine(ctx, a.String("path"), a.Int("line_number"), a.String("content")))
}

func (t *Toolset) appendToFile(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return editResult(t.Edit.AppendToFile(ctx, a.String("path"), a.String("content")))
}

func (t *Toolset) regexReplace(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return editResult(t.Edit.RegexReplace(ctx, a.String("path"), a.String("pattern"),
		a.String("replacement"), a.String("flags"), a.Int("count")))
}

func (t *Toolset) findAndReplace(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return editResult(t.Edit.FindAndReplace(ctx, a.String("path"), a.String("find"), a.String("replace"), a.Int("count")))
}

func (t *Toolset) insertAtPosition(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return editResult(t.Edit.InsertAtPosition(ctx, a.String("path"), int64(a.Int("position")), a.String("content")))
}

func (t *Toolset) patchApply(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	ops, err := a.Operations("operations")
	if err != nil {
		return models.ToolResult{}, err
	}
	return editResult(t.Edit.PatchApply(ctx, a.String("path"), ops))
}

func (t *Toolset) smartIndent(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return editResult(t.Edit.SmartIndent(ctx, a.String("path"), a.Int("start_line"), a.Int("end_line"),
		a.Int("indent_change"), a.Bool("use_tabs")))
}

// --- search ---

func noMatches(query, path string) string {
	return fmt.Sprintf("No matches for '%s' in %s", query, path)
}

func (t *Toolset) searchInFile(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	q := search.Query{
		Text:          a.String("search_text"),
		CaseSensitive: a.Bool("case_sensitive"),
		ContextLines:  a.Int("context_lines"),
		UseRegex:      a.Bool("use_regex"),
	}
	fm, err := t.Search.SearchFile(ctx, a.String("path"), q)
	if err != nil {
		return models.ToolResult{}, err
	}
	if fm.MatchCount() == 0 {
		return models.ToolResult{Text: noMatches(q.Text, fm.Path), Data: fm}, nil
	}
	return models.ToolResult{Text: search.FormatFile(fm, a.Bool("show_matches")), Data: fm}, nil
}

func (t *Toolset) searchInDirectory(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	q := search.Query{
		Text:          a.String("search_text"),
		CaseSensitive: a.Bool("case_sensitive"),
		ContextLines:  a.Int("context_lines"),
		UseRegex:      a.Bool("use_regex"),
	}
	maxFiles := a.Int("max_files")
	if t.SearchMaxFiles > 0 && maxFiles > t.SearchMaxFiles {
		maxFiles = t.SearchMaxFiles
	}
	r, err := t.Search.SearchDirectory(ctx, a.String("directory"), q, a.Strings("file_extensions"), maxFiles)
	if err != nil {
		return models.ToolResult{}, err
	}
	return models.ToolResult{Text: search.FormatDirectory(r), Data: r}, nil
}

func (t *Toolset) regexSearch(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	groups := a.Bool("capture_groups")
	fm, err := t.Search.RegexSearch(ctx, a.String("path"), a.String("pattern"), a.String("flags"), groups)
	if err != nil {
		return models.ToolResult{}, err
	}
	switch {
	case fm.MatchCount() == 0:
		return models.ToolResult{Text: noMatches(a.String("pattern"), fm.Path), Data: fm}, nil
	case groups:
		return models.ToolResult{Text: search.FormatGroups(fm), Data: fm}, nil
	default:
		return models.ToolResult{Text: search.FormatFile(fm, true), Data: fm}, nil
	}
}

func (t *Toolset) countOccurrences(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	o, err := t.Search.CountOccurrences(ctx, a.String("path"), a.String("search_text"), a.Bool("case_sensitive"))
	if err != nil {
		return models.ToolResult{}, err
	}
	return models.ToolResult{Text: o.String(), Data: o}, nil
}

func (t *Toolset) getFileSection(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.GetFileSection(ctx, a.String("path"), a.Int("start_line"), endLine(a), a.Int("context")))
}

// --- file I/O ---

func (t *Toolset) readFile(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.ReadFile(ctx, a.String("path")))
}

func (t *Toolset) writeFile(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.WriteFile(ctx, a.String("path"), a.String("content")))
}

func (t *Toolset) copyFile(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.CopyFile(ctx, a.String("source"), a.String("destination")))
}

func (t *Toolset) moveFile(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.MoveFile(ctx, a.String("source"), a.String("destination")))
}

func (t *Toolset) deleteFile(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.DeleteFile(ctx, a.String("path"), a.Bool("force")))
}

func (t *Toolset) backupFile(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.BackupFile(ctx, a.String("path")))
}

func (t *Toolset) backupFiles(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.BackupFiles(ctx, a.Strings("paths")))
}

func (t *Toolset) fileExists(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.FileExists(ctx, a.String("path")))
}

func (t *Toolset) fileInfo(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	fi, err := t.Files.FileInfo(ctx, a.String("path"))
	if err != nil {
		return models.ToolResult{}, err
	}
	return models.ToolResult{Text: fileops.DescribeFileInfo(fi), Data: fi}, nil
}

// --- directories ---

func (t *Toolset) listDirectory(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	l, err := t.Files.ListDirectory(ctx, a.String("path"))
	if err != nil {
		return models.ToolResult{}, err
	}
	return models.ToolResult{Text: fileops.DescribeListing(l), Data: l}, nil
}

func (t *Toolset) createDirectory(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.CreateDirectory(ctx, a.String("path")))
}

func (t *Toolset) createDirectories(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.CreateDirectories(ctx, a.Strings("paths")))
}

func (t *Toolset) listAllowedDirectories(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return models.ToolResult{Text: t.Files.ListAllowedDirectories()}, nil
}

func (t *Toolset) countFiles(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.CountFiles(ctx, a.String("path"), a.String("extension")))
}

func (t *Toolset) directorySize(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.DirectorySize(ctx, a.String("path")))
}

func (t *Toolset) recentFiles(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.RecentFiles(ctx, a.String("path"), a.Int("limit")))
}

func (t *Toolset) analyzeProject(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	return textResult(t.Files.AnalyzeProject(ctx, a.String("path")))
}

// --- commands ---

func (t *Toolset) executeCommand(ctx context.Context, a catalog.Args) (models.ToolResult, error) {
	timeout := time.Duration(a.Int("timeout")) * time.Second
	return textResult(t.Commands.Run(ctx, a.String("command"), timeout, a.String("cwd")))
}
