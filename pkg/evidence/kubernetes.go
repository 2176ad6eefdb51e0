package evidence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/DrSkyle/faultline/pkg/resource"
)

// NewKubernetesClient builds a clientset from a kubeconfig path; empty uses the default loading rules.
func NewKubernetesClient(kubeconfig string) (kubernetes.Interface, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return cs, nil
}

// KubernetesSource derives edges from workload manifests:
// a Service depends on the Deployments its selector matches, and a Deployment
// depends on every Service its containers address through environment variables.
type KubernetesSource struct {
	Client    kubernetes.Interface
	Namespace string // empty watches all namespaces

	SelectorConfidence float64
	EnvConfidence      float64
	now                func() time.Time
}

func NewKubernetesSource(client kubernetes.Interface, namespace string) *KubernetesSource {
	return &KubernetesSource{
		Client:             client,
		Namespace:          namespace,
		SelectorConfidence: 0.95,
		EnvConfidence:      0.8,
		now:                time.Now,
	}
}

func (s *KubernetesSource) Name() string { return resource.SourceKubernetes }

// ServiceID and DeploymentID are the topology ids this source reports.
func ServiceID(ns, name string) string    { return "service/" + ns + "/" + name }
func DeploymentID(ns, name string) string { return "deployment/" + ns + "/" + name }

func (s *KubernetesSource) Collect(ctx context.Context) ([]resource.Evidence, error) {
	if s.Client == nil {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Informer cache; one sync, then list from memory.
	factory := informers.NewSharedInformerFactoryWithOptions(s.Client, 10*time.Minute, informers.WithNamespace(s.Namespace))
	serviceLister := factory.Core().V1().Services().Lister()
	deploymentLister := factory.Apps().V1().Deployments().Lister()

	factory.Start(ctx.Done())
	defer factory.Shutdown()

	for kind, ok := range factory.WaitForCacheSync(ctx.Done()) {
		if !ok {
			return nil, fmt.Errorf("failed to sync informer for %v", kind)
		}
	}

	services, err := serviceLister.List(labels.Everything())
	if err != nil {
		return nil, fmt.Errorf("failed to list services from cache: %w", err)
	}
	deployments, err := deploymentLister.List(labels.Everything())
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments from cache: %w", err)
	}

	now := s.now()
	var out []resource.Evidence
	out = append(out, s.selectorEdges(services, deployments, now)...)
	out = append(out, s.envEdges(services, deployments, now)...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out, nil
}

func (s *KubernetesSource) selectorEdges(services []*corev1.Service, deployments []*appsv1.Deployment, now time.Time) []resource.Evidence {
	var out []resource.Evidence
	for _, svc := range services {
		if len(svc.Spec.Selector) == 0 {
			continue
		}
		sel := labels.SelectorFromSet(svc.Spec.Selector)
		for _, d := range deployments {
			if d.Namespace != svc.Namespace || !sel.Matches(labels.Set(d.Spec.Template.Labels)) {
				continue
			}
			out = append(out, resource.Evidence{
				Source:     s.Name(),
				SourceID:   ServiceID(svc.Namespace, svc.Name),
				TargetID:   DeploymentID(d.Namespace, d.Name),
				Confidence: s.SelectorConfidence,
				Items:      []string{"selector:" + sel.String()},
				DetectedAt: now,
			})
		}
	}
	return out
}

func (s *KubernetesSource) envEdges(services []*corev1.Service, deployments []*appsv1.Deployment, now time.Time) []resource.Evidence {
	var out []resource.Evidence
	for _, d := range deployments {
		found := make(map[string][]string)
		for _, c := range d.Spec.Template.Spec.Containers {
			for _, env := range c.Env {
				if env.Value == "" {
					continue
				}
				for _, svc := range services {
					if addressesService(env.Value, svc, d.Namespace) {
						id := ServiceID(svc.Namespace, svc.Name)
						found[id] = append(found[id], "env:"+c.Name+"/"+env.Name)
					}
				}
			}
		}
		for id, items := range found {
			out = append(out, resource.Evidence{
				Source:     s.Name(),
				SourceID:   DeploymentID(d.Namespace, d.Name),
				TargetID:   id,
				Confidence: s.EnvConfidence,
				Items:      items,
				DetectedAt: now,
			})
		}
	}
	return out
}

// addressesService matches the DNS forms a pod can use to reach svc:
// name (same namespace only), name.ns, name.ns.svc and name.ns.svc.cluster.local,
// optionally inside a URL or followed by a port.
func addressesService(value string, svc *corev1.Service, fromNS string) bool {
	for _, host := range hosts(value) {
		parts := strings.Split(host, ".")
		if parts[0] != svc.Name {
			continue
		}
		switch {
		case len(parts) == 1:
			if fromNS == svc.Namespace {
				return true
			}
		case parts[1] == svc.Namespace:
			if len(parts) == 2 || parts[2] == "svc" {
				return true
			}
		}
	}
	return false
}

// hosts extracts host-like tokens from an env value.
func hosts(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if i := strings.Index(f, "://"); i >= 0 {
			f = f[i+3:]
		}
		if i := strings.LastIndex(f, "@"); i >= 0 {
			f = f[i+1:]
		}
		if i := strings.IndexAny(f, ":/?"); i >= 0 {
			f = f[:i]
		}
		if f != "" {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}
