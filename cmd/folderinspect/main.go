// Command folderinspect indexes a dataset folder, loads one batch and reports
// what a training loop would receive.
//
// Usage:
//
//	go run ./cmd/folderinspect -root data/oct -tasks bscan,slo,layermaps
//	go run ./cmd/folderinspect -root data/pets -classes
//
// With -warm every sample is loaded once (filling the multi-task cache) with
// a progress bar, and with -hist a histogram of the first task's values in
// the batch is written as an image.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Noofbiz/taskfolder/datasets"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"
)

type options struct {
	root       string
	tasks      string
	classes    bool
	configPath string
	prefixes   map[string]string
	fsids      string
	maxImages  int
	threeD     bool
	batchSize  int
	warm       bool
	histPath   string
}

func parseFlags() *options {
	opts := &options{prefixes: map[string]string{}}
	flag.StringVar(&opts.root, "root", "", "root directory of the dataset")
	flag.StringVar(&opts.tasks, "tasks", "", "comma separated task folders (multi-task layout)")
	flag.BoolVar(&opts.classes, "classes", false, "treat root as root/<class>/*.ext instead of a multi-task folder")
	flag.StringVar(&opts.configPath, "config", "", "optional YAML or JSON dataset config; flags below override it")
	flag.Func("prefix", "task=prefix folder prefix for a task (repeatable)", func(v string) error {
		task, prefix, ok := strings.Cut(v, "=")
		if !ok || task == "" {
			return errors.Errorf("expected task=prefix, got %q", v)
		}
		opts.prefixes[task] = prefix
		return nil
	})
	flag.StringVar(&opts.fsids, "fsids", "", "comma separated file stems to keep (multi-task layout)")
	flag.IntVar(&opts.maxImages, "max-images", -1, "random subset size (-1 = use config)")
	flag.BoolVar(&opts.threeD, "three-d", false, "expand 2-D slo/bscan arrays to 3-D")
	flag.IntVar(&opts.batchSize, "batch", 0, "batch size (0 = use config)")
	flag.BoolVar(&opts.warm, "warm", false, "load every sample once before yielding")
	flag.StringVar(&opts.histPath, "hist", "", "if set, write a histogram of the first task's batch values to this path")
	klog.InitFlags(nil)
	flag.Parse()
	return opts
}

func (o *options) config() (datasets.Config, error) {
	cfg := datasets.Defaults()
	if o.configPath != "" {
		var err error
		if cfg, err = datasets.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}
	if cfg.Prefixes == nil {
		cfg.Prefixes = map[string]string{}
	}
	for task, prefix := range o.prefixes {
		cfg.Prefixes[task] = prefix
	}
	if o.fsids != "" {
		cfg.FSIDs = strings.Split(o.fsids, ",")
	}
	if o.maxImages >= 0 {
		cfg.MaxImages = o.maxImages
	}
	if o.threeD {
		cfg.ThreeD = true
	}
	if o.batchSize > 0 {
		cfg.BatchSize = o.batchSize
	}
	return cfg, cfg.Validate()
}

func main() {
	opts := parseFlags()
	defer klog.Flush()
	if err := run(opts); err != nil {
		klog.Errorf("%+v", err)
		klog.Flush()
		os.Exit(1)
	}
}

func run(opts *options) error {
	if opts.root == "" {
		return errors.New("-root is required")
	}
	cfg, err := opts.config()
	if err != nil {
		return err
	}

	var (
		ds    datasets.Dataset
		tasks []string
		warm  func(i int) error
	)
	if opts.classes {
		folder, err := datasets.NewImageFolder(opts.root, nil, cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Classes (%d): %s\n", len(folder.Classes), strings.Join(folder.Classes, ", "))
		ds, tasks = folder, []string{datasets.SampleKey}
		warm = func(i int) error { _, _, _, err := folder.Example(i); return err }
	} else {
		if opts.tasks == "" {
			return errors.New("-tasks is required unless -classes is set")
		}
		folder, err := datasets.NewMultiTaskImageFolder(opts.root, strings.Split(opts.tasks, ","), nil, cfg)
		if err != nil {
			return err
		}
		for _, task := range folder.Tasks {
			fmt.Printf("Task %q: %d files\n", task, len(folder.Samples[task]))
		}
		ds, tasks = folder, folder.Tasks
		warm = func(i int) error { _, _, _, _, err := folder.Example(i); return err }
	}
	fmt.Printf("Total examples available: %d\n", ds.Len())

	if opts.warm {
		if err := warmUp(ds.Len(), warm); err != nil {
			return err
		}
	}

	_, inputs, labels, err := ds.Yield()
	if err == io.EOF {
		return errors.New("dataset yielded no batch")
	}
	if err != nil {
		return errors.Wrap(err, "failed to yield a batch")
	}
	for i, t := range inputs {
		fmt.Printf("  input %-16q shape %s\n", tasks[i], t.Shape())
	}
	fmt.Printf("  labels           shape %s\n", labels[0].Shape())

	// Re-read the same first batch as arrays for statistics.
	n := min(cfg.BatchSize, ds.Len())
	indices := make([]int, n)
	for i := range n {
		indices[i] = i
	}
	batch, err := ds.Batch(indices)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		values := flatten(batch.Inputs[task])
		mean, std := stat.MeanStdDev(values, nil)
		fmt.Printf("  %-16q mean=%.4f std=%.4f\n", task, mean, std)
	}

	if opts.histPath != "" {
		if err := writeHistogram(opts.histPath, tasks[0], flatten(batch.Inputs[tasks[0]])); err != nil {
			return err
		}
		fmt.Printf("Histogram written to %s\n", opts.histPath)
	}
	return nil
}

func warmUp(n int, load func(i int) error) error {
	bar := progressbar.NewOptions(n,
		progressbar.OptionSetDescription("Loading samples"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("samples"),
		progressbar.OptionShowIts(),
	)
	for i := range n {
		if err := load(i); err != nil {
			return errors.WithMessagef(err, "sample %d", i)
		}
		_ = bar.Add(1)
	}
	_ = bar.Close()
	fmt.Println()
	return nil
}

func flatten(arrays []*datasets.Array) []float64 {
	var out []float64
	for _, a := range arrays {
		for _, v := range a.Data {
			out = append(out, float64(v))
		}
	}
	return out
}

func writeHistogram(path, task string, values []float64) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Values of task %q", task)
	p.X.Label.Text = "value"
	p.Y.Label.Text = "count"
	h, err := plotter.NewHist(plotter.Values(values), 50)
	if err != nil {
		return errors.Wrap(err, "failed to build histogram")
	}
	p.Add(h)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save histogram to %s", path)
	}
	return nil
}
