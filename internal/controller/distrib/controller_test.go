// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package distrib

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/events"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/controller"
	"github.com/vynil/vynil/internal/packages/git"
	"github.com/vynil/vynil/internal/validation"
)

type fakeFetcher struct {
	result *git.Result
	err    error
	calls  []git.Source
}

func (f *fakeFetcher) Fetch(_ context.Context, src git.Source) (*git.Result, error) {
	f.calls = append(f.calls, src)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func drain(recorder *events.FakeRecorder) []string {
	var out []string
	for {
		select {
		case e := <-recorder.Events:
			out = append(out, e)
		default:
			return out
		}
	}
}

var _ = Describe("Distrib Controller", func() {
	const name = "base"

	var (
		ctx      context.Context
		c        client.Client
		recorder *events.FakeRecorder
		fetcher  *fakeFetcher
		rec      *controller.Controller[*vynilv1alpha1.Distrib]
		now      time.Time
	)

	setup := func(objs ...client.Object) {
		c = fake.NewClientBuilder().
			WithScheme(scheme).
			WithObjects(objs...).
			WithStatusSubresource(&vynilv1alpha1.Distrib{}).
			Build()
		recorder = events.NewFakeRecorder(50)
		rt := controller.NewRuntime(c, c, recorder, "vynil-test", controller.DefaultTiming())
		rt.Now = func() time.Time { return now }
		rec = controller.NewController(ControllerName, rt,
			func() *vynilv1alpha1.Distrib { return &vynilv1alpha1.Distrib{} },
			&Reconciler{Fetcher: fetcher, Validator: validation.New()})
	}

	newDistrib := func() *vynilv1alpha1.Distrib {
		return &vynilv1alpha1.Distrib{
			ObjectMeta: metav1.ObjectMeta{Name: name, Generation: 1},
			Spec:       vynilv1alpha1.DistribSpec{URL: "https://git.example.com/base.git"},
		}
	}

	reconcile := func() (ctrl.Result, error) {
		return rec.Reconcile(ctx, ctrl.Request{NamespacedName: types.NamespacedName{Name: name}})
	}

	fetched := func() *vynilv1alpha1.Distrib {
		d := &vynilv1alpha1.Distrib{}
		Expect(c.Get(ctx, types.NamespacedName{Name: name}, d)).To(Succeed())
		return d
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		fetcher = &fakeFetcher{result: &git.Result{
			Commit: "0123abcd",
			Packages: []vynilv1alpha1.PackageInfo{
				{Category: "core", Name: "demo", Version: "1.0.0", Image: "registry.example.com/core/demo:1.0.0", Type: "system"},
				{Category: "core", Name: "demo", Version: "1.2.0", Image: "registry.example.com/core/demo:1.2.0", Type: "system"},
			},
		}}
	})

	It("publishes the packages found in the repository", func() {
		setup(newDistrib())

		result, err := reconcile()
		Expect(err).NotTo(HaveOccurred())
		Expect(result.RequeueAfter).To(Equal(controller.DefaultTiming().DriftInterval))

		d := fetched()
		Expect(d.Status.Commit).To(Equal("0123abcd"))
		Expect(d.Status.Packages).To(HaveLen(2))
		Expect(d.Status.LastFetched).NotTo(BeNil())
		Expect(d.Status.LastFetched.Time.Equal(now)).To(BeTrue())
		Expect(d.Status.Components).To(BeEmpty())
		Expect(d.Status.Errors).To(BeEmpty())
		Expect(d.Finalizers).To(BeEmpty())
		Expect(meta.IsStatusConditionTrue(d.Status.Conditions, vynilv1alpha1.ConditionReady)).To(BeTrue())

		Expect(drain(recorder)).To(Equal([]string{"Normal GitClone git clone for base"}))
		Expect(fetcher.calls).To(ConsistOf(git.Source{URL: "https://git.example.com/base.git", Branch: "main"}))
	})

	It("passes the login secret credentials to the fetcher", func() {
		d := newDistrib()
		d.Spec.Branch = "stable"
		d.Spec.Login = &vynilv1alpha1.DistribLogin{
			SecretRef: vynilv1alpha1.SecretKeyRef{Name: "git-login", Namespace: "vynil-system"},
		}
		secret := &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: "git-login", Namespace: "vynil-system"},
			Data:       map[string][]byte{UsernameKey: []byte("bot"), PasswordKey: []byte("s3cret")},
		}
		setup(d, secret)

		_, err := reconcile()
		Expect(err).NotTo(HaveOccurred())
		Expect(fetcher.calls).To(HaveLen(1))
		Expect(fetcher.calls[0].Branch).To(Equal("stable"))
		Expect(fetcher.calls[0].Username).To(Equal("bot"))
		Expect(fetcher.calls[0].Password).To(Equal("s3cret"))
	})

	It("waits for the user when the login secret is missing", func() {
		d := newDistrib()
		d.Spec.Login = &vynilv1alpha1.DistribLogin{
			SecretRef: vynilv1alpha1.SecretKeyRef{Name: "git-login", Namespace: "vynil-system"},
		}
		setup(d)

		result, err := reconcile()
		Expect(err).NotTo(HaveOccurred())
		Expect(result.RequeueAfter).To(Equal(controller.DefaultTiming().ErrorRequeue))
		Expect(fetcher.calls).To(BeEmpty())
		Expect(fetched().Status.Errors).To(Equal([]string{"login secret vynil-system/git-login not found"}))
	})

	It("rejects an invalid spec without cloning", func() {
		d := newDistrib()
		d.Spec.URL = ""
		setup(d)

		result, err := reconcile()
		Expect(err).NotTo(HaveOccurred())
		Expect(result.RequeueAfter).To(Equal(controller.DefaultTiming().ErrorRequeue))
		Expect(fetcher.calls).To(BeEmpty())

		cond := meta.FindStatusCondition(fetched().Status.Conditions, vynilv1alpha1.ConditionReady)
		Expect(cond).NotTo(BeNil())
		Expect(cond.Reason).To(Equal(string(controller.ReasonIllegalDistrib)))
	})

	It("retries a failed clone with backoff and keeps the previous index", func() {
		d := newDistrib()
		setup(d)
		_, err := reconcile()
		Expect(err).NotTo(HaveOccurred())
		drain(recorder)

		fetcher.err = errors.New("connection refused")
		_, err = reconcile()
		Expect(err).To(HaveOccurred())
		Expect(controller.AsError(err).Reason).To(Equal(controller.ReasonGitFetch))

		got := fetched()
		Expect(got.Status.Commit).To(Equal("0123abcd"))
		Expect(got.Status.Packages).To(HaveLen(2))
		Expect(got.Status.Errors).To(Equal([]string{"git clone failed: connection refused"}))
		Expect(drain(recorder)).To(Equal([]string{
			"Warning git clone failed: connection refused git clone failed: connection refused",
		}))
	})

	It("reports skipped descriptors as warnings", func() {
		fetcher.result.Invalid = []error{errors.New("core/broken/package.yaml: versions: min")}
		setup(newDistrib())

		_, err := reconcile()
		Expect(err).NotTo(HaveOccurred())
		Expect(drain(recorder)).To(Equal([]string{
			"Normal GitClone git clone for base",
			"Warning InvalidPackage core/broken/package.yaml: versions: min",
		}))
	})

	It("lets a deleted distrib go without cleanup", func() {
		d := newDistrib()
		d.Finalizers = []string{controller.Finalizer}
		setup(d)
		Expect(c.Delete(ctx, d)).To(Succeed())

		result, err := reconcile()
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(ctrl.Result{}))

		gone := &vynilv1alpha1.Distrib{}
		err = c.Get(ctx, types.NamespacedName{Name: name}, gone)
		Expect(err).To(HaveOccurred())
		Expect(drain(recorder)).To(ContainElement("Normal Cleaned cleanup of base done"))
	})
})
