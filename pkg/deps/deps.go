// Package deps downloads and unpacks the external tools listed in deps.yml (dxc, vcpkg, ...).
package deps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/DethRaid/SanityEngine/pkg"
	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

// Spec describes a single archive
type Spec struct {
	// Condition and Rejections are comma separated variable names which have to be set (or unset)
	Condition  string   `yaml:"if,omitempty"`
	Rejections string   `yaml:"ifNot,omitempty"`
	URL        string   `yaml:"url"`
	Dest       string   `yaml:"dest"`
	Sha256     string   `yaml:"sha256"`
	Strip      int      `yaml:"strip,omitempty"`
	MarkExec   []string `yaml:"markExec,omitempty"`
}

// Config is the content of deps.yml
type Config struct {
	Vars map[string]string `yaml:"vars"`
	Deps map[string]Spec   `yaml:"deps"`
}

// LoadConfig parses the YAML file at path
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "could not open file %s", path)
	}

	cfg := new(Config)
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	if cfg.Vars == nil {
		cfg.Vars = map[string]string{}
	}
	return cfg, nil
}

// LoadStamps reads the stamps file which records the already extracted archives. A missing file
// isn't an error.
func LoadStamps(path string) (map[string]string, error) {
	stamps := map[string]string{}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return stamps, nil
		}
		return nil, eris.Wrapf(err, "failed to read stamps file %s", path)
	}

	err = json.Unmarshal(data, &stamps)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse JSON file %s", path)
	}
	return stamps, nil
}

// SaveStamps writes the stamps file
func SaveStamps(path string, stamps map[string]string) error {
	data, err := json.MarshalIndent(stamps, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to encode stamps")
	}

	err = ioutil.WriteFile(path, data, 0660)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

var varMatcher = regexp.MustCompile(`\{([A-Z0-9_]+)\}`)

// evalConditions replaces {VAR} placeholders in the URL and reports whether the dependency applies
// to this machine.
func evalConditions(meta *Spec, vars map[string]string) bool {
	meta.URL = varMatcher.ReplaceAllStringFunc(meta.URL, func(varName string) string {
		return vars[varName[1:len(varName)-1]]
	})

	for _, condition := range strings.Split(meta.Condition, ",") {
		condition = strings.TrimSpace(condition)
		if condition == "" {
			continue
		}

		if vars[condition] == "" {
			return false
		}
	}

	for _, condition := range strings.Split(meta.Rejections, ",") {
		condition = strings.TrimSpace(condition)
		if condition == "" {
			continue
		}

		if vars[condition] != "" {
			return false
		}
	}
	return true
}

// Fetcher downloads dependencies into Root
type Fetcher struct {
	Root   string
	Client *http.Client
	// Stamps maps dependency names to URL#sha256 of the extracted archive. It's updated in place.
	Stamps map[string]string
	// Vars are merged into the variables from deps.yml
	Vars     map[string]string
	Progress bool
}

func (f *Fetcher) bar(length int64, desc string) *progressbar.ProgressBar {
	if !f.Progress {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}
	return pkg.NewBytesBar(length, desc)
}

func (f *Fetcher) vars(cfg *Config) map[string]string {
	vars := map[string]string{
		runtime.GOOS:   "true",
		runtime.GOARCH: "true",
	}
	if pkg.IsCI() {
		vars["ci"] = "true"
	}

	for k, v := range cfg.Vars {
		vars[k] = v
	}
	for k, v := range f.Vars {
		vars[k] = v
	}
	return vars
}

// Fetch downloads and extracts every dependency whose conditions match and whose stamp is outdated.
// The names of the extracted dependencies are returned in alphabetical order.
func (f *Fetcher) Fetch(ctx context.Context, cfg *Config) ([]string, error) {
	if f.Stamps == nil {
		f.Stamps = map[string]string{}
	}

	client := f.Client
	if client == nil {
		client = &http.Client{
			Timeout: time.Minute * 30,
		}
	}

	names := make([]string, 0, len(cfg.Deps))
	for name := range cfg.Deps {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := f.vars(cfg)
	fetched := []string{}
	for _, name := range names {
		meta := cfg.Deps[name]
		if !evalConditions(&meta, vars) {
			sblog.Log(ctx).Debug().Str("dep", name).Msg("Skipped because of its conditions")
			continue
		}

		destPath := filepath.Join(f.Root, meta.Dest)
		_, err := os.Stat(destPath)
		destExists := err == nil

		stampToken := meta.URL + "#" + meta.Sha256
		if f.Stamps[name] == stampToken && destExists {
			sblog.Log(ctx).Debug().Str("dep", name).Msg("Up to date")
			continue
		}

		if meta.Sha256 == "" {
			return fetched, eris.Errorf("dependency %s doesn't have a checksum", name)
		}

		pkg.PrintSubtask(name + ":  " + meta.URL)
		err = f.fetch(ctx, client, meta, destPath, destExists)
		if err != nil {
			return fetched, eris.Wrapf(err, "failed to fetch %s", name)
		}

		f.Stamps[name] = stampToken
		fetched = append(fetched, name)
	}

	return fetched, nil
}

func (f *Fetcher) fetch(ctx context.Context, client *http.Client, meta Spec, destPath string, destExists bool) error {
	extractor, err := getExtractor(meta.URL)
	if err != nil {
		return err
	}

	arHandle, err := ioutil.TempFile("", "sanity-deps-*.tmp")
	if err != nil {
		return eris.Wrap(err, "failed to create a temporary file")
	}
	defer func() {
		arHandle.Close()
		os.Remove(arHandle.Name())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return eris.Wrapf(err, "invalid URL %s", meta.URL)
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "failed to start download for %s", meta.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download of %s failed with status %s", meta.URL, resp.Status)
	}

	hash := sha256.New()
	bar := f.bar(resp.ContentLength, "     download")
	size, err := io.Copy(io.MultiWriter(arHandle, hash, bar), resp.Body)
	if err != nil {
		return eris.Wrapf(err, "failed during download of %s", meta.URL)
	}
	_ = bar.Finish()

	digest := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(digest, meta.Sha256) {
		return eris.Errorf("checksum mismatch for %s: expected %s but got %s", meta.URL, meta.Sha256, digest)
	}

	if destExists {
		pkg.PrintSubtask("Remove " + destPath)
		err = os.RemoveAll(destPath)
		if err != nil {
			return eris.Wrapf(err, "failed to remove %s", destPath)
		}
	}

	_, err = arHandle.Seek(0, io.SeekStart)
	if err != nil {
		return eris.Wrap(err, "failed to rewind the download")
	}

	bar = f.bar(size, "      extract")
	err = extractor(arHandle, size, bar, destPath, meta.Strip)
	if err != nil {
		return err
	}
	_ = bar.Finish()

	if runtime.GOOS != "windows" {
		// zip archives don't carry permissions
		for _, binPath := range meta.MarkExec {
			binPath = filepath.Join(destPath, binPath)
			fi, err := os.Stat(binPath)
			if err != nil {
				return eris.Wrapf(err, "failed to read permissions for %s", binPath)
			}

			err = os.Chmod(binPath, fi.Mode()|0700)
			if err != nil {
				return eris.Wrapf(err, "failed to mark %s as executable", binPath)
			}
		}
	}

	return nil
}
