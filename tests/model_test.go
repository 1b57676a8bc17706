package tests_test

import (
	"testing"

	"github.com/containerd/nerdctl/mod/tigron/expect"
	"github.com/containerd/nerdctl/mod/tigron/test"

	"github.com/farcloser/agar/pkg/agar"

	"github.com/farcloser/tocsin/tests/testutils"
)

func TestModelCLI(t *testing.T) {
	testCase := testutils.Setup()

	testCase.SubTests = []*test.Case{
		{
			Description: "predict without a model fails",
			Setup: func(data test.Data, helpers test.Helpers) {
				file := agar.Genuine16bit44k(data, helpers)
				data.Labels().Set("file", file)
				data.Labels().Set("store", fixtureDir(file, "empty-store"))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command("--model-store", data.Labels().Get("store"), "predict", data.Labels().Get("file"))
			},
			Expected: test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "info without a model fails",
			Setup: func(data test.Data, helpers test.Helpers) {
				data.Labels().Set("store", fixtureDir(agar.Genuine16bit44k(data, helpers), "empty-store"))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command("--model-store", data.Labels().Get("store"), "info")
			},
			Expected: test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "train on a folder without class directories fails",
			Setup: func(data test.Data, helpers test.Helpers) {
				file := agar.Genuine16bit44k(data, helpers)
				data.Labels().Set("folder", fixtureDir(file, "unlabelled"))
				data.Labels().Set("store", fixtureDir(file, "models"))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command("--model-store", data.Labels().Get("store"), "train", data.Labels().Get("folder"))
			},
			Expected: test.Expects(expect.ExitCodeGenericFail, nil, nil),
		},
		{
			Description: "train reports validation metrics",
			Setup:       buildDataset,
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command(
					"--model-store", data.Labels().Get("store"),
					"train", "--epochs", "3", "--workers", "2", data.Labels().Get("dataset"),
				)
			},
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output: expect.All(
						expectContains("model_version"),
						expectContains("confusion"),
						expectPositive("train_samples"),
					),
				}
			},
		},
		{
			Description: "a trained model classifies clips",
			Setup: func(data test.Data, helpers test.Helpers) {
				buildDataset(data, helpers)
				helpers.Ensure("--model-store", data.Labels().Get("store"), "train", "--epochs", "3",
					data.Labels().Get("dataset"))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command("--model-store", data.Labels().Get("store"), "predict", "--diagnostics",
					data.Labels().Get("clip"))
			},
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output: expect.All(
						expectContains("class_label"),
						expectContains("processing_successful"),
						expectPositive("features_extracted"),
						expectContains("clipping"),
					),
				}
			},
		},
		{
			Description: "info describes a trained model",
			Setup: func(data test.Data, helpers test.Helpers) {
				buildDataset(data, helpers)
				helpers.Ensure("--model-store", data.Labels().Get("store"), "train", "--epochs", "2",
					data.Labels().Get("dataset"))
			},
			Command: func(data test.Data, helpers test.Helpers) test.TestableCommand {
				return helpers.Command("--model-store", data.Labels().Get("store"), "info")
			},
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output: expect.All(
						expectContains("layout_version"),
						expectPositive("total_params"),
						expectContains("emergency"),
					),
				}
			},
		},
	}

	testCase.Run(t)
}
