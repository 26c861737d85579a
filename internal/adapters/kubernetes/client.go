package kubernetes

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"funcapp-deploy/internal/config"
	"funcapp-deploy/internal/core/funcapp"
	"funcapp-deploy/pkg/rand"

	"github.com/rs/zerolog"
	batchv1 "k8s.io/api/batch/v1"
	apiv1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	appLabel      = "app.kubernetes.io/name"
	runLabel      = "funcapp-deploy/run"
	appName       = "funcapp-deploy"
	containerName = "publish"
	stagingDir    = "/staging"

	// Secrets are capped at 1MiB by the API server.
	maxBindBytes = 1 << 20
	// Leaves room for the "-<n>" suffix of bind Secrets.
	maxJobName = 60
)

var (
	secretKey   = regexp.MustCompile(`^[-._a-zA-Z0-9]+$`)
	invalidName = regexp.MustCompile(`[^a-z0-9-]+`)
)

// Client runs one-off containers as Kubernetes Jobs.
type Client struct {
	clientset    kubernetes.Interface
	namespace    string
	pollInterval time.Duration
	lg           zerolog.Logger
	stdout       io.Writer
}

// New uses the in-cluster service account when running inside a pod and the
// configured kubeconfig otherwise.
func New(cfg config.Config, lg zerolog.Logger) (*Client, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("load kubernetes config: %w", err)
		}
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return newClient(clientset, cfg.K8sNamespace, lg), nil
}

func newClient(clientset kubernetes.Interface, namespace string, lg zerolog.Logger) *Client {
	return &Client{
		clientset:    clientset,
		namespace:    namespace,
		pollInterval: 2 * time.Second,
		lg:           lg.With().Str("adapter", "kubernetes").Str("namespace", namespace).Logger(),
		stdout:       os.Stdout,
	}
}

// RunContainer runs spec as a single-attempt Job and waits for it to finish.
//
// A pod cannot mount host directories, so each bind is shipped as a Secret
// holding the top-level regular files of the host directory. An init
// container copies them into a writable emptyDir mounted at the bind target.
// The Job and its Secrets are deleted once the run ends; with AutoRemove the
// cluster also reaps the Job if this process dies first.
func (c *Client) RunContainer(ctx context.Context, spec funcapp.ContainerSpec) error {
	name := jobName(spec.Name)
	lg := c.lg.With().Str("job", name).Str("image", spec.Image).Logger()
	labels := map[string]string{appLabel: appName, runLabel: name}

	var secrets []string
	defer func() {
		c.cleanup(context.WithoutCancel(ctx), name, secrets, lg)
	}()

	var (
		volumes  []apiv1.Volume
		staging  []apiv1.VolumeMount
		mounts   []apiv1.VolumeMount
		copyCmds []string
	)
	for i, bind := range spec.Binds {
		parts := strings.Split(bind, ":")
		if len(parts) < 2 {
			return fmt.Errorf("invalid bind %q", bind)
		}
		hostDir, target := parts[0], parts[1]

		data, err := c.readBindDir(hostDir, lg)
		if err != nil {
			return err
		}
		secretName := fmt.Sprintf("%s-%d", name, i)
		_, err = c.clientset.CoreV1().Secrets(c.namespace).Create(ctx, &apiv1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: secretName, Namespace: c.namespace, Labels: labels},
			Data:       data,
		}, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("create secret %s: %w", secretName, err)
		}
		secrets = append(secrets, secretName)

		src := fmt.Sprintf("src-%d", i)
		work := fmt.Sprintf("work-%d", i)
		stage := fmt.Sprintf("%s/%d", stagingDir, i)
		volumes = append(volumes,
			apiv1.Volume{Name: src, VolumeSource: apiv1.VolumeSource{
				Secret: &apiv1.SecretVolumeSource{SecretName: secretName},
			}},
			apiv1.Volume{Name: work, VolumeSource: apiv1.VolumeSource{
				EmptyDir: &apiv1.EmptyDirVolumeSource{},
			}},
		)
		staging = append(staging, apiv1.VolumeMount{Name: src, MountPath: stage, ReadOnly: true})
		mounts = append(mounts, apiv1.VolumeMount{Name: work, MountPath: target})
		// -L resolves the Secret's key symlinks and skips its ..data dirs.
		copyCmds = append(copyCmds, fmt.Sprintf("find -L %s -maxdepth 1 -type f -exec cp {} '%s/' \\;", stage, target))
	}

	podSpec := apiv1.PodSpec{
		RestartPolicy: apiv1.RestartPolicyNever,
		Containers: []apiv1.Container{{
			Name:         containerName,
			Image:        spec.Image,
			Command:      spec.Cmd,
			WorkingDir:   spec.WorkingDir,
			VolumeMounts: mounts,
		}},
		Volumes: volumes,
	}
	if len(copyCmds) > 0 {
		podSpec.InitContainers = []apiv1.Container{{
			Name:         "stage",
			Image:        spec.Image,
			Command:      []string{"sh", "-c", "set -e; " + strings.Join(copyCmds, "; ")},
			VolumeMounts: append(append([]apiv1.VolumeMount{}, staging...), mounts...),
		}}
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: c.namespace, Labels: labels},
		Spec: batchv1.JobSpec{
			BackoffLimit: int32Ptr(0),
			Template: apiv1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       podSpec,
			},
		},
	}
	if spec.AutoRemove {
		job.Spec.TTLSecondsAfterFinished = int32Ptr(0)
	}
	if _, err := c.clientset.BatchV1().Jobs(c.namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	lg.Info().Msg("created kubernetes job")

	runErr := wait.PollUntilContextCancel(ctx, c.pollInterval, true, func(ctx context.Context) (bool, error) {
		j, err := c.clientset.BatchV1().Jobs(c.namespace).Get(ctx, name, metav1.GetOptions{})
		switch {
		case apierrors.IsNotFound(err):
			return false, fmt.Errorf("job %s disappeared", name)
		case err != nil:
			lg.Debug().Err(err).Msg("job status unavailable, retrying")
			return false, nil
		case j.Status.Succeeded > 0:
			return true, nil
		case j.Status.Failed > 0:
			return false, jobFailure(j)
		}
		return false, nil
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.streamLogs(context.WithoutCancel(ctx), name, lg)
	if runErr != nil {
		return runErr
	}
	lg.Info().Msg("kubernetes job finished")
	return nil
}

// readBindDir returns the top-level regular files of dir keyed by name.
func (c *Client) readBindDir(dir string, lg zerolog.Logger) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read bind source: %w", err)
	}
	data := make(map[string][]byte)
	total := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !secretKey.MatchString(e.Name()) {
			lg.Debug().Str("file", e.Name()).Msg("skipping file with unsupported name")
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read bind source: %w", err)
		}
		total += len(b)
		if total > maxBindBytes {
			return nil, fmt.Errorf("bind source %s exceeds %d bytes", dir, maxBindBytes)
		}
		data[e.Name()] = b
	}
	return data, nil
}

func (c *Client) streamLogs(ctx context.Context, name string, lg zerolog.Logger) {
	pods, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: runLabel + "=" + name,
	})
	if err != nil {
		lg.Warn().Err(err).Msg("could not list job pods")
		return
	}
	for _, pod := range pods.Items {
		rc, err := c.clientset.CoreV1().Pods(c.namespace).
			GetLogs(pod.Name, &apiv1.PodLogOptions{Container: containerName}).
			Stream(ctx)
		if err != nil {
			lg.Warn().Err(err).Str("pod", pod.Name).Msg("could not fetch pod logs")
			continue
		}
		if _, err := io.Copy(c.stdout, rc); err != nil {
			lg.Debug().Err(err).Str("pod", pod.Name).Msg("pod log stream ended")
		}
		rc.Close()
	}
}

func (c *Client) cleanup(ctx context.Context, name string, secrets []string, lg zerolog.Logger) {
	deletePolicy := metav1.DeletePropagationBackground
	err := c.clientset.BatchV1().Jobs(c.namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &deletePolicy,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		lg.Warn().Err(err).Msg("failed to delete job")
	}
	for _, s := range secrets {
		err := c.clientset.CoreV1().Secrets(c.namespace).Delete(ctx, s, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			lg.Warn().Err(err).Str("secret", s).Msg("failed to delete secret")
		}
	}
}

func jobFailure(j *batchv1.Job) error {
	for _, cond := range j.Status.Conditions {
		if cond.Type == batchv1.JobFailed && cond.Status == apiv1.ConditionTrue {
			return fmt.Errorf("job %s failed: %s: %s", j.Name, cond.Reason, cond.Message)
		}
	}
	return fmt.Errorf("job %s failed", j.Name)
}

// jobName turns a container name into a DNS-1123 label.
func jobName(name string) string {
	n := invalidName.ReplaceAllString(strings.ToLower(name), "-")
	n = strings.Trim(n, "-")
	if len(n) > maxJobName {
		n = strings.TrimRight(n[:maxJobName], "-")
	}
	if n == "" {
		n = "funcapp-run-" + rand.ID16()[:8]
	}
	return n
}

func int32Ptr(i int32) *int32 { return &i }
