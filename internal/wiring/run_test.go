package wiring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"evacsim/internal/analyser"
	"evacsim/internal/experiment"
	"evacsim/internal/logging"
	"evacsim/internal/netlogo/netlogotest"
	"evacsim/internal/results"
	"evacsim/internal/scenario"
	"evacsim/internal/sensor"
	"evacsim/internal/stats"
	"evacsim/internal/store"
)

func scriptedBatch(pool *netlogotest.Pool, workers int) *experiment.BatchRunner {
	runner := experiment.NewRunner(experiment.RunnerConfig{}, logging.Discard())
	return experiment.NewBatchRunner(pool.Factory(), runner,
		experiment.WithWorkers(workers),
		experiment.WithModelFile("v2.11.0.nlogo"),
		experiment.WithBatchLogger(logging.Discard()),
	)
}

func twoScenarios() []scenario.Scenario {
	list, err := scenario.Select(scenario.Defaults(), []string{scenario.AdaptiveSupport, scenario.NoSupport})
	gomega.Expect(err).To(gomega.Succeed())
	return list
}

var _ = ginkgo.Describe("Study", func() {
	var (
		dir string
		st  *store.MemStore
	)

	ginkgo.BeforeEach(func() {
		dir = ginkgo.GinkgoT().TempDir()
		st = store.NewMemStore()
	})

	ginkgo.It("runs every scenario, writes the CSV and analyses it", func() {
		pool := &netlogotest.Pool{Script: func(id int) netlogotest.Trial {
			return netlogotest.Trial{EvacuatedAt: 100 + 7*(id%5)}
		}}
		study := Study{
			Samples:     6,
			ResultsPath: filepath.Join(dir, "experiment_results.csv"),
			Focus:       scenario.AdaptiveSupport,
			Alternative: stats.Less,
			Store:       st,
		}

		out, err := study.Run(context.Background(), scriptedBatch(pool, 2), twoScenarios())
		gomega.Expect(err).To(gomega.Succeed())

		table, err := results.ReadFile(study.ResultsPath)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(table.Names()).To(gomega.Equal([]string{scenario.AdaptiveSupport, scenario.NoSupport}))
		gomega.Expect(table.Rows()).To(gomega.Equal(6))

		gomega.Expect(out.Report.Rows).To(gomega.Equal(6))
		gomega.Expect(out.Report.Summaries).To(gomega.HaveLen(2))
		gomega.Expect(out.Report.Comparisons).To(gomega.HaveLen(1))
		cmpRes := out.Report.Comparisons[0]
		gomega.Expect(cmpRes.Second).To(gomega.Equal(scenario.NoSupport))
		gomega.Expect(cmpRes.Reject).To(gomega.BeFalse(), "identical columns must not reject the null")

		run, err := st.GetRun(out.RunID)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(run).NotTo(gomega.BeNil())
		gomega.Expect(run.Status).To(gomega.Equal(store.RunComplete))
		trials, err := st.ListTrials(out.RunID, "")
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(trials).To(gomega.HaveLen(12))

		for _, l := range pool.Links() {
			gomega.Expect(l.Model()).To(gomega.Equal("v2.11.0.nlogo"))
		}
	})

	ginkgo.It("leaves failed trials out of the results", func() {
		pool := &netlogotest.Pool{Script: func(id int) netlogotest.Trial {
			if id == 2 {
				return netlogotest.Trial{Err: errors.New("java.lang.RuntimeException")}
			}
			return netlogotest.Trial{EvacuatedAt: 150}
		}}
		study := Study{
			Samples:     4,
			ResultsPath: filepath.Join(dir, "experiment_results.csv"),
			Focus:       scenario.AdaptiveSupport,
			Store:       st,
		}

		out, err := study.Run(context.Background(), scriptedBatch(pool, 1), twoScenarios())
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(out.Report.Rows).To(gomega.Equal(3))

		trials, err := st.ListTrials(out.RunID, scenario.NoSupport)
		gomega.Expect(err).To(gomega.Succeed())
		var failed int
		for _, tr := range trials {
			if tr.Status == experiment.Failed.String() {
				failed++
			}
		}
		gomega.Expect(failed).To(gomega.Equal(1))
	})

	ginkgo.It("fails the run when no link can load the model", func() {
		pool := &netlogotest.Pool{Script: netlogotest.Evacuates(100), LoadErr: errors.New("model not found")}
		study := Study{Samples: 2, ResultsPath: filepath.Join(dir, "experiment_results.csv"), Focus: scenario.AdaptiveSupport, Store: st}

		_, err := study.Run(context.Background(), scriptedBatch(pool, 2), twoScenarios())
		gomega.Expect(err).To(gomega.HaveOccurred())
		_, statErr := os.Stat(study.ResultsPath)
		gomega.Expect(os.IsNotExist(statErr)).To(gomega.BeTrue())
	})

	ginkgo.It("reports an unknown focus scenario after the run", func() {
		pool := &netlogotest.Pool{Script: netlogotest.Evacuates(100)}
		study := Study{Samples: 2, ResultsPath: filepath.Join(dir, "experiment_results.csv"), Focus: "missing"}

		out, err := study.Run(context.Background(), scriptedBatch(pool, 1), twoScenarios())
		gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("missing")))
		gomega.Expect(out).NotTo(gomega.BeNil())
		gomega.Expect(out.RunID).NotTo(gomega.BeEmpty())
	})
})

func writeRequestForHelp(dir string) {
	header := strings.Join(append(append([]string(nil), sensor.Columns...), analyser.LabelColumn), ",")
	for i := 0; i < 3; i++ {
		var b strings.Builder
		b.WriteString(header + "\n")
		for j := 0; j < 12; j++ {
			culture, help := "a", 1
			if j%2 == 1 {
				culture, help = "b", 0
			}
			fmt.Fprintf(&b, "female,a,adult,male,%s,elderly,near,far,%d\n", culture, help)
		}
		name := filepath.Join(dir, fmt.Sprintf("%d%s", i, analyser.RequestForHelpSuffix))
		gomega.Expect(os.WriteFile(name, []byte(b.String()), 0o644)).To(gomega.Succeed())
	}
}

var _ = ginkgo.Describe("Decide", func() {
	var (
		dataDir string
		cfg     analyser.TrainConfig
		reading sensor.Reading
	)

	ginkgo.BeforeEach(func() {
		dataDir = ginkgo.GinkgoT().TempDir()
		writeRequestForHelp(dataDir)
		cfg = analyser.TrainConfig{MaxEpochs: 50, BatchSize: 8, LearningRate: 0.05, Seed: 7, Logger: logging.Discard()}
		reading = sensor.Reading{
			HelperGender: "female", HelperCulture: "a", HelperAge: "adult",
			FallenGender: "male", FallenCulture: "a", FallenAge: "elderly",
			HelperFallenDistance: "near", StaffFallenDistance: "far",
		}
	})

	ginkgo.It("gives a high probability when the cultures match", func() {
		p, err := Decide(context.Background(), dataDir, cfg, reading)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(p).To(gomega.BeNumerically(">", 0.5))
	})

	ginkgo.It("gives a low probability when they differ", func() {
		reading.FallenCulture = "b"
		p, err := Decide(context.Background(), dataDir, cfg, reading)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(p).To(gomega.BeNumerically("<", 0.5))
	})

	ginkgo.It("rejects a category never seen in training", func() {
		reading.FallenAge = "infant"
		_, err := Decide(context.Background(), dataDir, cfg, reading)
		gomega.Expect(err).To(gomega.MatchError(analyser.ErrUnknownCategory))
	})

	ginkgo.It("fails without training data", func() {
		_, err := Decide(context.Background(), ginkgo.GinkgoT().TempDir(), cfg, reading)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})
