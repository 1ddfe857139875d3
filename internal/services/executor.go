package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/scriptdeck/scriptdeck/internal/config"
	"github.com/scriptdeck/scriptdeck/internal/models"
)

var paramNameRe = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// ExecutorService runs cataloged scripts as child processes of the configured
// interpreter. It knows nothing about what a script does: the contract is a
// path, named command-line parameters, captured streams, an exit code, and a
// wall-clock timeout.
//
// Every execution, including validation failures that never spawn a process,
// is recorded through the HistoryService before Execute returns.
type ExecutorService struct {
	history *HistoryService
	cfg     *config.Config
	root    string

	streams   map[string][]chan string
	streamsMu sync.RWMutex
}

// NewExecutorService creates a new ExecutorService instance. root is the
// absolute scripts directory that catalog paths are relative to.
func NewExecutorService(history *HistoryService, cfg *config.Config, root string) *ExecutorService {
	return &ExecutorService{
		history: history,
		cfg:     cfg,
		root:    root,
		streams: make(map[string][]chan string),
	}
}

// Execute runs a script synchronously with the given parameter values and
// returns the terminal Execution record. The returned error covers only
// history persistence failures; script failures are reported in the
// Execution itself.
func (s *ExecutorService) Execute(script models.Script, params map[string]any) (*models.Execution, error) {
	if params == nil {
		params = map[string]any{}
	}

	execution := &models.Execution{
		ID:         uuid.New().String(),
		ScriptPath: script.Path,
		ScriptName: script.Name,
		Category:   script.Category,
		Parameters: params,
		Status:     models.StatusRunning,
		StartedAt:  time.Now(),
	}

	if err := s.history.Record(execution); err != nil {
		return nil, err
	}

	log.Printf("[Executor] Starting execution %s: %s", execution.ID, script.Path)

	if err := validateParameters(script.Parameters, params); err != nil {
		log.Printf("[Executor] Validation failed for %s: %v", execution.ID, err)
		return execution, s.finish(execution, models.StatusFailed, "", "Validation error: "+err.Error(), nil)
	}

	fullPath := filepath.Join(s.root, filepath.FromSlash(script.Path))
	args := append([]string{}, s.cfg.Scripts.InterpreterArgs...)
	args = append(args, fullPath)
	args = append(args, serializeParameters(params)...)

	timeout := s.cfg.Execution.DefaultTimeout
	if timeout > s.cfg.Execution.MaxTimeout {
		timeout = s.cfg.Execution.MaxTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.Command(s.cfg.Scripts.Interpreter, args...)
	// Scripts assume relative paths resolve next to themselves.
	cmd.Dir = filepath.Dir(fullPath)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return execution, s.finish(execution, models.StatusFailed, "", err.Error(), nil)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return execution, s.finish(execution, models.StatusFailed, "", err.Error(), nil)
	}

	if err := cmd.Start(); err != nil {
		log.Printf("[Executor] Error starting interpreter for %s: %v", execution.ID, err)
		return execution, s.finish(execution, models.StatusFailed, "", err.Error(), nil)
	}

	outBuf := newBoundedBuffer(s.cfg.Execution.MaxOutputSize)
	errBuf := newBoundedBuffer(s.cfg.Execution.MaxOutputSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.streamOutput(execution.ID, "stdout", stdout, outBuf)
	}()
	go func() {
		defer wg.Done()
		s.streamOutput(execution.ID, "stderr", stderr, errBuf)
	}()

	pid := cmd.Process.Pid
	go func() {
		<-ctx.Done()
		if ctx.Err() == context.DeadlineExceeded {
			log.Printf("[Executor] Execution %s exceeded %ds timeout, killing process tree (pid %d)", execution.ID, timeout, pid)
			s.killTree(pid)
		}
	}()

	// The pipes reach EOF when the process (or its killed tree) exits;
	// reads must complete before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()

	exitCode := 0
	status := models.StatusSuccess

	if ctx.Err() == context.DeadlineExceeded {
		status = models.StatusTimeout
		exitCode = -1
	} else if waitErr != nil {
		status = models.StatusFailed
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	err = s.finish(execution, status, outBuf.String(), errBuf.String(), &exitCode)
	log.Printf("[Executor] Finished execution %s with status=%s, exit_code=%d", execution.ID, status, exitCode)
	return execution, err
}

// finish applies the single terminal transition of an execution and records
// it before control returns to the caller.
func (s *ExecutorService) finish(execution *models.Execution, status models.ExecutionStatus, stdout, stderr string, exitCode *int) error {
	now := time.Now()
	execution.Status = status
	execution.Stdout = stdout
	execution.Stderr = stderr
	execution.ExitCode = exitCode
	execution.FinishedAt = &now
	execution.Duration = now.Sub(execution.StartedAt).Seconds()

	err := s.history.Record(execution)
	s.broadcastComplete(execution.ID, status)
	return err
}

// killTree terminates the process and all of its descendants. Hung scripts
// often leave child processes (connectors, module hosts) behind; killing
// only the direct child would orphan them.
func (s *ExecutorService) killTree(pid int) {
	if proc, err := process.NewProcess(int32(pid)); err == nil {
		if children, err := proc.Children(); err == nil {
			for _, child := range children {
				_ = child.Kill()
			}
		}
	}
	killProcessGroup(pid)
}

func (s *ExecutorService) streamOutput(executionID, stream string, r io.Reader, buf *boundedBuffer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteLine(line)
		s.broadcastLine(executionID, stream, line)
	}
}

// validateParameters checks the supplied values against the script's
// declared parameter descriptors. Mandatory parameters must be present and
// non-empty; enum parameters must use one of their valid values.
func validateParameters(declared []models.Parameter, supplied map[string]any) error {
	for _, p := range declared {
		value, ok := lookupParam(supplied, p.Name)
		str := stringifyValue(value)

		if p.Mandatory && (!ok || str == "") {
			return fmt.Errorf("mandatory parameter %q is missing", p.Name)
		}
		if !ok || str == "" {
			continue
		}
		if p.Type == models.TypeEnum && len(p.ValidValues) > 0 {
			valid := false
			for _, v := range p.ValidValues {
				if v == str {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("invalid value %q for parameter %q (valid values: %s)",
					str, p.Name, strings.Join(p.ValidValues, ", "))
			}
		}
	}
	return nil
}

func lookupParam(supplied map[string]any, name string) (any, bool) {
	if v, ok := supplied[name]; ok {
		return v, true
	}
	for k, v := range supplied {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// serializeParameters converts the parameter map to the interpreter's named
// argument convention: -Name value pairs, true booleans as a bare -Name
// flag, arrays comma-joined. Keys are sorted so the argument order is
// deterministic.
func serializeParameters(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []string
	for _, key := range keys {
		name := paramNameRe.ReplaceAllString(key, "")
		if name == "" {
			continue
		}

		switch v := params[key].(type) {
		case bool:
			if v {
				args = append(args, "-"+name)
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, stringifyValue(item))
			}
			args = append(args, "-"+name, strings.Join(parts, ","))
		default:
			if s := stringifyValue(v); s != "" {
				args = append(args, "-"+name, s)
			}
		}
	}
	return args
}

func stringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// boundedBuffer accumulates line output up to a byte cap. Once the cap is
// reached further lines are dropped and a truncation marker is appended, so
// a pathological script cannot grow memory without bound.
type boundedBuffer struct {
	mu        sync.Mutex
	b         strings.Builder
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) WriteLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return
	}
	if b.b.Len()+len(line)+1 > b.limit {
		b.truncated = true
		b.b.WriteString("[output truncated]\n")
		return
	}
	b.b.WriteString(line)
	b.b.WriteString("\n")
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Subscribe registers a channel that receives live output lines for an
// execution. The channel is closed by Unsubscribe.
func (s *ExecutorService) Subscribe(executionID string) chan string {
	ch := make(chan string, 100)

	s.streamsMu.Lock()
	s.streams[executionID] = append(s.streams[executionID], ch)
	s.streamsMu.Unlock()

	return ch
}

// Unsubscribe removes a channel registered with Subscribe.
func (s *ExecutorService) Unsubscribe(executionID string, ch chan string) {
	s.streamsMu.Lock()
	defer s.streamsMu.Unlock()

	channels := s.streams[executionID]
	for i, c := range channels {
		if c == ch {
			s.streams[executionID] = append(channels[:i], channels[i+1:]...)
			close(ch)
			break
		}
	}

	if len(s.streams[executionID]) == 0 {
		delete(s.streams, executionID)
	}
}

func (s *ExecutorService) broadcastLine(executionID, stream, line string) {
	s.streamsMu.RLock()
	defer s.streamsMu.RUnlock()

	for _, ch := range s.streams[executionID] {
		select {
		case ch <- stream + ":" + line:
		default:
		}
	}
}

func (s *ExecutorService) broadcastComplete(executionID string, status models.ExecutionStatus) {
	s.streamsMu.RLock()
	defer s.streamsMu.RUnlock()

	for _, ch := range s.streams[executionID] {
		select {
		case ch <- "complete:" + string(status):
		default:
		}
	}
}
