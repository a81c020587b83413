package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/BaSui01/taskflow/api"
	"github.com/BaSui01/taskflow/pipeline"
)

// =============================================================================
// 📨 控制命令（run / approve / reject / inspect）
// =============================================================================
// 客户端命令通过 serve 进程的 HTTP API 操作流水线，
// 与 worker 不共享任何进程内状态。

// runStart 提交订单并启动履行流水线
func runStart(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	orderPath := fs.String("order", "", "Path to order JSON file")
	wait := fs.Bool("wait", false, "Block until the instance reaches a terminal state")
	fs.Parse(args)

	if *orderPath == "" {
		fmt.Fprintln(os.Stderr, "run: --order is required")
		os.Exit(1)
	}

	order, err := os.ReadFile(*orderPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}

	var resp api.StartOrderResponse
	if err := postJSON(*addr+"/api/v1/orders", order, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Started pipeline %s, instance %s\n", resp.Pipeline, resp.InstanceID)

	if *wait {
		waitForTerminal(*addr, resp.InstanceID)
	}
}

// waitForTerminal 轮询实例直至终态
func waitForTerminal(addr, instanceID string) {
	for {
		time.Sleep(2 * time.Second)

		var inst pipeline.Instance
		if err := getJSON(addr+"/api/v1/instances/"+instanceID, &inst); err != nil {
			// 实例可能还没落档
			continue
		}

		fmt.Printf("  state=%s\n", inst.State)
		if inst.State.Terminal() {
			printInstance(&inst)
			if inst.State != pipeline.StateSucceeded {
				os.Exit(1)
			}
			return
		}
	}
}

// runDecision 发送审批信号
func runDecision(args []string, approved bool) {
	name := "approve"
	if !approved {
		name = "reject"
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	feedback := fs.String("m", "", "Feedback message")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "%s: instance id is required\n", name)
		os.Exit(1)
	}
	instanceID := fs.Arg(0)

	body, _ := json.Marshal(api.DecisionRequest{Feedback: *feedback})
	url := fmt.Sprintf("%s/api/v1/instances/%s/%s", *addr, instanceID, name)

	var resp api.DecisionResponse
	if err := postJSON(url, body, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}

	fmt.Printf("Decision %s delivered to %s\n", name, instanceID)
}

// runInspect 查看归档实例或任务活性轨迹
func runInspect(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "inspect: subcommand required (instances | instance <id> | liveness <task-id>)")
		os.Exit(1)
	}

	switch args[0] {
	case "instances":
		inspectInstances(args[1:])
	case "instance":
		inspectInstance(args[1:])
	case "liveness":
		inspectLiveness(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "inspect: unknown subcommand %s\n", args[0])
		os.Exit(1)
	}
}

func inspectInstances(args []string) {
	fs := flag.NewFlagSet("inspect instances", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	pipelineName := fs.String("pipeline", "", "Filter by pipeline name")
	limit := fs.Int("limit", 20, "Max instances to list")
	fs.Parse(args)

	var resp api.InstanceList
	url := fmt.Sprintf("%s/api/v1/instances?pipeline=%s&limit=%d", *addr, *pipelineName, *limit)
	if err := getJSON(url, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}

	for _, inst := range resp.Instances {
		fmt.Printf("%-40s %-18s %-10s %s\n",
			inst.ID, inst.Pipeline, inst.State, inst.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Printf("%d instance(s)\n", resp.Count)
}

func inspectInstance(args []string) {
	fs := flag.NewFlagSet("inspect instance", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "inspect instance: instance id is required")
		os.Exit(1)
	}

	var inst pipeline.Instance
	if err := getJSON(*addr+"/api/v1/instances/"+fs.Arg(0), &inst); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
	printInstance(&inst)
}

func inspectLiveness(args []string) {
	fs := flag.NewFlagSet("inspect liveness", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "inspect liveness: task instance id is required")
		os.Exit(1)
	}

	var out bytes.Buffer
	resp, err := http.Get(*addr + "/api/v1/tasks/" + fs.Arg(0) + "/liveness")
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "inspect: status %d: %s\n", resp.StatusCode, body)
		os.Exit(1)
	}

	_ = json.Indent(&out, body, "", "  ")
	fmt.Println(out.String())
}

// printInstance 输出实例摘要
func printInstance(inst *pipeline.Instance) {
	fmt.Printf("Instance:  %s\n", inst.ID)
	fmt.Printf("Pipeline:  %s\n", inst.Pipeline)
	fmt.Printf("State:     %s\n", inst.State)
	for _, stage := range inst.Stages {
		status := "ok"
		if stage.Error != "" {
			status = stage.Error
		}
		fmt.Printf("  stage %-22s attempts=%d %s\n", stage.Name, stage.Attempts, status)
	}
	if inst.Decision != nil {
		fmt.Printf("Decision:  %s", inst.Decision.Outcome)
		if inst.Decision.Feedback != "" {
			fmt.Printf(" (%s)", inst.Decision.Feedback)
		}
		fmt.Println()
	}
	if inst.FailedStage != "" {
		fmt.Printf("Failed at: %s [%s] %s\n", inst.FailedStage, inst.ErrorCode, inst.ErrorMessage)
	}
	if len(inst.Result) > 0 {
		fmt.Printf("Result:    %s\n", inst.Result)
	}
}

// =============================================================================
// 🔧 HTTP 辅助
// =============================================================================

var httpClient = &http.Client{Timeout: 10 * time.Second}

func postJSON(url string, body []byte, out any) error {
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(url string, out any) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e api.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("server: %s", e.Error)
		}
		return fmt.Errorf("server: status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
