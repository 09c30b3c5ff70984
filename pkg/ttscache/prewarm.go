package ttscache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

// Synthesizer is the narrow TTS surface preWarm needs: synthesise one
// phrase to OGG Opus bytes. ttsclient.Client satisfies this directly.
type Synthesizer interface {
	SynthesizeBaked(ctx context.Context, text string) (voicecore.AudioChunk, error)
}

// bakeManifest is the on-disk record spec.md §4.2/§6 describes:
// {configHash, entries: {filename: phrase-text}}.
type bakeManifest struct {
	ConfigHash string            `json:"configHash"`
	Entries    map[string]string `json:"entries"`
}

const prewarmConcurrency = 5

// PreWarm implements spec.md §4.2's preWarm: reconcile the on-disk baked
// store against the current TTS config, load whatever still matches, and
// synthesise the rest with a bounded worker pool. provider/model/voice/
// instructions key the cache entries and the config hash exactly as Key
// and ConfigHash do.
func (c *Cache) PreWarm(ctx context.Context, phrases []string, label string, synth Synthesizer, bakedDir, provider, model, voice, instructions string, maxSizeMb int, logger voicecore.Logger) error {
	if logger == nil {
		logger = voicecore.NoOpLogger{}
	}
	newHash := ConfigHash(provider, model, voice, instructions)

	c.mu.Lock()
	changed := c.configHash != "" && c.configHash != newHash
	c.configHash = newHash
	c.mu.Unlock()
	if changed {
		c.Clear()
	}

	if err := os.MkdirAll(bakedDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating baked directory: %v", voicecore.ErrBakedStoreCorrupt, err)
	}

	manifestPath := filepath.Join(bakedDir, "manifest.json")
	existing, err := loadManifest(manifestPath)
	if err != nil {
		logger.Warn("baked manifest unreadable, rebuilding", "error", err.Error())
		clearBakedDir(bakedDir, logger)
		existing = bakeManifest{ConfigHash: newHash, Entries: map[string]string{}}
	} else if existing.ConfigHash != newHash {
		logger.Info("tts config changed, rebuilding baked store")
		clearBakedDir(bakedDir, logger)
		existing = bakeManifest{ConfigHash: newHash, Entries: map[string]string{}}
	}

	phraseToFilename := make(map[string]string, len(existing.Entries))
	for filename, phrase := range existing.Entries {
		phraseToFilename[phrase] = filename
	}

	result := bakeManifest{ConfigHash: newHash, Entries: make(map[string]string)}
	var resultMu sync.Mutex
	var queue []string

	for _, phrase := range phrases {
		filename, hasFile := phraseToFilename[phrase]
		if !hasFile {
			queue = append(queue, phrase)
			continue
		}
		data, err := os.ReadFile(filepath.Join(bakedDir, filename))
		if err != nil {
			logger.Warn("baked phrase file unreadable, re-queueing for synthesis", "file", filename, "error", err.Error())
			queue = append(queue, phrase)
			continue
		}
		key := Key(provider, model, voice, instructions, phrase)
		c.setBaked(key, data, maxSizeMb)
		c.RegisterPhraseKey(key, label)
		resultMu.Lock()
		result.Entries[filename] = phrase
		resultMu.Unlock()
	}

	var nextIdx int32 = -1
	var wg sync.WaitGroup
	for w := 0; w < prewarmConcurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n := atomic.AddInt32(&nextIdx, 1)
				if int(n) >= len(queue) {
					return
				}
				phrase := queue[n]

				chunk, err := synth.SynthesizeBaked(ctx, phrase)
				if err != nil {
					logger.Warn("baked phrase synthesis failed", "label", label, "error", err.Error())
					continue
				}

				key := Key(provider, model, voice, instructions, phrase)
				filename := fmt.Sprintf("%s-%s.ogg", label, key)

				c.setBaked(key, chunk.Bytes, maxSizeMb)
				c.RegisterPhraseKey(key, label)

				if err := os.WriteFile(filepath.Join(bakedDir, filename), chunk.Bytes, 0o644); err != nil {
					logger.Warn("writing baked phrase file failed, keeping in-memory entry", "file", filename, "error", err.Error())
					continue
				}
				resultMu.Lock()
				result.Entries[filename] = phrase
				resultMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := writeManifest(manifestPath, result); err != nil {
		logger.Warn("writing baked manifest failed", "error", err.Error())
	}
	return nil
}

func loadManifest(path string) (bakeManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return bakeManifest{Entries: map[string]string{}}, nil
		}
		return bakeManifest{}, err
	}
	var m bakeManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return bakeManifest{}, err
	}
	if m.Entries == nil {
		m.Entries = map[string]string{}
	}
	return m, nil
}

func writeManifest(path string, m bakeManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func clearBakedDir(dir string, logger voicecore.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".ogg" {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			logger.Warn("failed to remove stale baked file", "file", e.Name(), "error", err.Error())
		}
	}
}
