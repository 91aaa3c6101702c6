package brain

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// NothingMarker is the token chunk prompts ask for when a chunk has no
// tasks. MarkerClassifier matches it.
const NothingMarker = "NIHIL"

const (
	TaskSummary = "summary"
	TaskTasks   = "tasks"
	TaskVoting  = "voting"
)

// ChunkData feeds a chunk template. Index is 1-based for display.
type ChunkData struct {
	Index      int
	Count      int
	Transcript string
	Marker     string
	Schema     string
}

// ReduceData feeds a reduce template.
type ReduceData struct {
	Count    int
	Partials string
	Marker   string
	Schema   string
}

// Task is one prompt pair plus the classifier applied to chunk outputs.
type Task struct {
	Name       string
	System     string
	Chunk      *template.Template
	Reduce     *template.Template
	Classifier Classifier
	Schema     string
}

func (t Task) renderChunk(d ChunkData) (string, error) {
	d.Marker, d.Schema = NothingMarker, t.Schema
	return render(t.Chunk, d)
}

func (t Task) renderReduce(d ReduceData) (string, error) {
	d.Marker, d.Schema = NothingMarker, t.Schema
	return render(t.Reduce, d)
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

type Prompts struct {
	Summary   Task
	Tasks     Task
	Voting    Task
	AskSystem string
}

const defaultSystem = "Anda adalah Notulis Rapat yang cerdas dan efisien untuk sebuah grup WhatsApp. Jawab dalam Bahasa Indonesia."

const summaryChunk = `Berikut adalah bagian {{.Index}} dari {{.Count}} transkrip obrolan grup. Pesan yang lebih baru ada di bagian bawah.

Rangkum bagian ini dengan jelas. Fokus pada:
1. Poin-poin penting yang didiskusikan.
2. Keputusan yang telah dibuat (jika ada).
3. Action items atau tugas (siapa harus melakukan apa).

TRANSKRIP OBROLAN:
---
{{.Transcript}}
---

RANGKUMAN POIN PENTING:`

const summaryReduce = `Berikut adalah {{.Count}} rangkuman parsial dari satu obrolan grup yang panjang, berurutan dari yang paling awal.

Gabungkan semuanya menjadi SATU rangkuman akhir yang utuh dan tidak berulang. Pertahankan:
1. Poin-poin penting yang didiskusikan.
2. Keputusan yang telah dibuat.
3. Action items (siapa harus melakukan apa).

RANGKUMAN PARSIAL:
{{.Partials}}

RANGKUMAN AKHIR:`

const tasksChunk = `Berikut adalah bagian {{.Index}} dari {{.Count}} transkrip obrolan grup.

Daftarkan semua tugas atau action item yang disepakati: siapa, melakukan apa, dan tenggatnya jika disebut.
Tulis satu tugas per baris dengan format "- [Nama] tugas (tenggat)".
Jika tidak ada tugas sama sekali, jawab HANYA dengan kata {{.Marker}}.

TRANSKRIP OBROLAN:
---
{{.Transcript}}
---

DAFTAR TUGAS:`

const tasksReduce = `Berikut adalah {{.Count}} daftar tugas parsial dari satu obrolan grup, berurutan dari yang paling awal.

Gabungkan menjadi satu daftar tugas akhir. Hapus duplikat, dan jika tugas yang sama diperbarui belakangan, pakai versi terakhir.
Tulis satu tugas per baris dengan format "- [Nama] tugas (tenggat)".

DAFTAR PARSIAL:
{{.Partials}}

DAFTAR TUGAS AKHIR:`

const votingChunk = `Baca bagian {{.Index}} dari {{.Count}} transkrip obrolan di bawah ini.

Tugas Anda:
1. Identifikasi SATU pertanyaan utama yang sedang diperdebatkan (misal: "Makan di mana?", "Deadline kapan?").
2. Ekstrak 2-5 opsi jawaban dari diskusi tersebut.

Format jawaban Anda HANYA sebagai JSON yang valid sesuai skema berikut:
{{.Schema}}

Contoh:
{"question": "PERTANYAAN_VOTING", "options": ["OPSI_1", "OPSI_2", "OPSI_3"]}

Jika tidak ada topik voting yang jelas, kembalikan:
{"error": "Tidak ada topik voting yang jelas ditemukan dalam diskusi."}

TRANSKRIP OBROLAN:
---
{{.Transcript}}
---

BERIKAN HANYA JSON:`

const votingReduce = `Berikut adalah {{.Count}} usulan voting dari bagian-bagian berbeda satu obrolan grup, berurutan dari yang paling awal.

Pilih SATU pertanyaan yang paling penting dan paling baru diperdebatkan, lalu susun 2-5 opsi jawabannya.
Format jawaban Anda HANYA sebagai JSON yang valid sesuai skema berikut:
{{.Schema}}

Jika tidak ada topik voting yang jelas, kembalikan:
{"error": "Tidak ada topik voting yang jelas ditemukan dalam diskusi."}

USULAN:
{{.Partials}}

BERIKAN HANYA JSON:`

// DefaultPrompts returns the built-in Indonesian prompts.
func DefaultPrompts() *Prompts {
	p, err := buildPrompts(promptFile{})
	if err != nil {
		panic(fmt.Sprintf("built-in prompts: %v", err))
	}
	return p
}

type promptPair struct {
	System string `yaml:"system"`
	Chunk  string `yaml:"chunk"`
	Reduce string `yaml:"reduce"`
}

type promptFile struct {
	Summary promptPair `yaml:"summary"`
	Tasks   promptPair `yaml:"tasks"`
	Voting  promptPair `yaml:"voting"`
	Ask     struct {
		System string `yaml:"system"`
	} `yaml:"ask"`
}

// LoadPrompts reads a YAML override file. Any field left out keeps its
// built-in value; an empty path returns the defaults.
//
//	summary:
//	  chunk: |
//	    Rangkum bagian {{.Index}}/{{.Count}}:
//	    {{.Transcript}}
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts file: %w", err)
	}

	var f promptFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing prompts file: %w", err)
	}
	return buildPrompts(f)
}

func buildPrompts(f promptFile) (*Prompts, error) {
	summary, err := buildTask(TaskSummary, f.Summary, promptPair{defaultSystem, summaryChunk, summaryReduce}, KeepNonEmpty, "")
	if err != nil {
		return nil, err
	}
	tasks, err := buildTask(TaskTasks, f.Tasks, promptPair{defaultSystem, tasksChunk, tasksReduce}, MarkerClassifier{Marker: NothingMarker}, "")
	if err != nil {
		return nil, err
	}
	voting, err := buildTask(TaskVoting, f.Voting, promptPair{defaultSystem, votingChunk, votingReduce}, PollClassifier, PollSchema())
	if err != nil {
		return nil, err
	}

	return &Prompts{
		Summary:   summary,
		Tasks:     tasks,
		Voting:    voting,
		AskSystem: or(f.Ask.System, defaultSystem),
	}, nil
}

func buildTask(name string, override, defaults promptPair, classifier Classifier, schema string) (Task, error) {
	chunk, err := template.New(name + ".chunk").Option("missingkey=error").Parse(or(override.Chunk, defaults.Chunk))
	if err != nil {
		return Task{}, fmt.Errorf("parsing %s chunk template: %w", name, err)
	}
	reduce, err := template.New(name + ".reduce").Option("missingkey=error").Parse(or(override.Reduce, defaults.Reduce))
	if err != nil {
		return Task{}, fmt.Errorf("parsing %s reduce template: %w", name, err)
	}
	return Task{
		Name:       name,
		System:     or(override.System, defaults.System),
		Chunk:      chunk,
		Reduce:     reduce,
		Classifier: classifier,
		Schema:     schema,
	}, nil
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
