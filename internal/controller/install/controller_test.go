// Copyright 2025 The Vynil Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/client-go/tools/events"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	vynilv1alpha1 "github.com/vynil/vynil/api/v1alpha1"
	"github.com/vynil/vynil/internal/controller"
	"github.com/vynil/vynil/internal/controller/render"
	"github.com/vynil/vynil/internal/labels"
	"github.com/vynil/vynil/internal/validation"
)

const (
	namespace = "apps"
	name      = "demo"
)

type fakeRegistry struct {
	exists bool
	err    error
	images []string
}

func (f *fakeRegistry) Exists(_ context.Context, image string) (bool, error) {
	f.images = append(f.images, image)
	return f.exists, f.err
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

func newDistrib() *vynilv1alpha1.Distrib {
	defaults := &apiextensionsv1.JSON{Raw: []byte(`{"domain":"example.com","replicas":1}`)}
	return &vynilv1alpha1.Distrib{
		ObjectMeta: metav1.ObjectMeta{Name: "base"},
		Spec:       vynilv1alpha1.DistribSpec{URL: "https://git.example.com/base.git"},
		Status: vynilv1alpha1.DistribStatus{
			Commit: "0123abcd",
			Packages: []vynilv1alpha1.PackageInfo{
				{Category: "core", Name: "demo", Version: "1.0.0", Image: "registry.example.com/core/demo:1.0.0", Type: "system", Options: defaults},
				{Category: "core", Name: "demo", Version: "1.2.0", Image: "registry.example.com/core/demo:1.2.0", Type: "system", Options: defaults},
			},
		},
	}
}

func newInstall() *vynilv1alpha1.Install {
	return &vynilv1alpha1.Install{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Generation: 1},
		Spec: vynilv1alpha1.InstallSpec{
			PackageRef: vynilv1alpha1.PackageRef{Distrib: "base", Category: "core"},
			Component:  "demo",
		},
	}
}

var _ = Describe("Install Controller", func() {
	var (
		ctx        context.Context
		c          client.Client
		recorder   *events.FakeRecorder
		reconciler *Reconciler
		rec        *controller.Controller[*vynilv1alpha1.Install]
		timing     controller.Timing
	)

	key := types.NamespacedName{Namespace: namespace, Name: name}
	jobKey := types.NamespacedName{Namespace: namespace, Name: "demo-install-job"}
	secretKey := types.NamespacedName{Namespace: namespace, Name: "demo-values"}

	setup := func(objs ...client.Object) {
		c = fake.NewClientBuilder().
			WithScheme(scheme).
			WithObjects(objs...).
			WithStatusSubresource(&vynilv1alpha1.Install{}, &vynilv1alpha1.Distrib{}, &batchv1.Job{}).
			Build()
		recorder = events.NewFakeRecorder(50)
		rt := controller.NewRuntime(c, c, recorder, "vynil-test", timing)
		rec = controller.NewController(ControllerName, rt,
			func() *vynilv1alpha1.Install { return &vynilv1alpha1.Install{} }, reconciler)
	}

	reconcile := func() (ctrl.Result, error) {
		return rec.Reconcile(ctx, ctrl.Request{NamespacedName: key})
	}

	fetched := func() *vynilv1alpha1.Install {
		inst := &vynilv1alpha1.Install{}
		Expect(c.Get(ctx, key, inst)).To(Succeed())
		return inst
	}

	setJobCondition := func(cond batchv1.JobCondition) {
		job := &batchv1.Job{}
		Expect(c.Get(ctx, jobKey, job)).To(Succeed())
		job.Status.Conditions = append(job.Status.Conditions, cond)
		Expect(c.Status().Update(ctx, job)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		timing = controller.DefaultTiming()
		reconciler = &Reconciler{
			Agent: render.Agent{
				Image:          "ghcr.io/vynil/agent:latest",
				ServiceAccount: "vynil-agent",
				PullPolicy:     corev1.PullIfNotPresent,
				BackoffLimit:   3,
				PackageDir:     "/package",
			},
			Validator: validation.New(),
		}
	})

	Context("when the package resolves", func() {
		It("creates the values secret and the install job in order", func() {
			setup(newDistrib(), newInstall())

			result, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(timing.JobPollInterval))

			inst := fetched()
			Expect(controllerutil.ContainsFinalizer(inst, controller.Finalizer)).To(BeTrue())
			Expect(inst.Status.Errors).To(BeEmpty())
			Expect(inst.Status.Phase).To(Equal(vynilv1alpha1.PhasePending))
			Expect(inst.Status.Package).NotTo(BeNil())
			Expect(inst.Status.Package.Version).To(Equal("1.2.0"))
			Expect(inst.Status.Components).To(Equal([]vynilv1alpha1.ChildRef{
				{APIVersion: "v1", Kind: "Secret", Name: "demo-values", Namespace: namespace},
				{APIVersion: "batch/v1", Kind: "Job", Name: "demo-install-job", Namespace: namespace},
			}))

			Expect(drain(recorder)).To(Equal([]string{
				"Normal Created created Secret demo-values for Install demo",
				"Normal Created created Job demo-install-job for Install demo",
			}))

			job := &batchv1.Job{}
			Expect(c.Get(ctx, jobKey, job)).To(Succeed())
			Expect(job.Labels).To(HaveKeyWithValue(labels.LabelKeyRole, render.RoleInstallJob))
			Expect(metav1.IsControlledBy(job, inst)).To(BeTrue())
			Expect(job.Spec.Template.Spec.Containers[0].Args).To(Equal([]string{render.ActionInstall}))
		})

		It("merges the spec options over the package defaults", func() {
			inst := newInstall()
			inst.Spec.Options = &apiextensionsv1.JSON{Raw: []byte(`{"replicas":2}`)}
			setup(newDistrib(), inst)

			_, err := reconcile()
			Expect(err).NotTo(HaveOccurred())

			secret := &corev1.Secret{}
			Expect(c.Get(ctx, secretKey, secret)).To(Succeed())
			var values struct {
				Instance map[string]string `json:"instance"`
				Options  map[string]any    `json:"options"`
			}
			Expect(json.Unmarshal(secret.Data[render.ValuesKey], &values)).To(Succeed())
			Expect(values.Instance).To(Equal(map[string]string{"kind": "Install", "name": name, "namespace": namespace}))
			Expect(values.Options).To(Equal(map[string]any{"domain": "example.com", "replicas": float64(2)}))
		})

		It("reports the phase of the install job", func() {
			setup(newDistrib(), newInstall())
			_, err := reconcile()
			Expect(err).NotTo(HaveOccurred())

			setJobCondition(batchv1.JobCondition{Type: batchv1.JobComplete, Status: corev1.ConditionTrue})
			result, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(timing.DriftInterval))

			inst := fetched()
			Expect(inst.Status.Phase).To(Equal(vynilv1alpha1.PhaseInstalled))
			Expect(meta.IsStatusConditionTrue(inst.Status.Conditions, vynilv1alpha1.ConditionReady)).To(BeTrue())
		})

		It("keeps the children and waits for a fix when the job fails", func() {
			setup(newDistrib(), newInstall())
			_, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			drain(recorder)

			setJobCondition(batchv1.JobCondition{
				Type:    batchv1.JobFailed,
				Status:  corev1.ConditionTrue,
				Reason:  "BackoffLimitExceeded",
				Message: "Job has reached the specified backoff limit",
			})
			result, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(timing.ErrorRequeue))

			inst := fetched()
			Expect(inst.Status.Phase).To(Equal(vynilv1alpha1.PhaseFailed))
			Expect(inst.Status.Components).To(HaveLen(2))
			Expect(inst.Status.Errors).To(Equal([]string{
				"job demo-install-job failed: Job has reached the specified backoff limit",
			}))
			cond := meta.FindStatusCondition(inst.Status.Conditions, vynilv1alpha1.ConditionReady)
			Expect(cond).NotTo(BeNil())
			Expect(cond.Reason).To(Equal(string(controller.ReasonJobFailed)))
		})

		It("replaces the install job when the options change", func() {
			setup(newDistrib(), newInstall())
			_, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			drain(recorder)

			before := &batchv1.Job{}
			Expect(c.Get(ctx, jobKey, before)).To(Succeed())

			inst := fetched()
			inst.Spec.Options = &apiextensionsv1.JSON{Raw: []byte(`{"replicas":3}`)}
			Expect(c.Update(ctx, inst)).To(Succeed())

			_, err = reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(drain(recorder)).To(Equal([]string{
				"Normal Created replaced Job demo-install-job for Install demo",
			}))

			after := &batchv1.Job{}
			Expect(c.Get(ctx, jobKey, after)).To(Succeed())
			Expect(after.Annotations[labels.AnnotationSpecHash]).NotTo(Equal(before.Annotations[labels.AnnotationSpecHash]))
		})

		It("does nothing more on a converged object", func() {
			setup(newDistrib(), newInstall())
			_, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			setJobCondition(batchv1.JobCondition{Type: batchv1.JobComplete, Status: corev1.ConditionTrue})
			_, err = reconcile()
			Expect(err).NotTo(HaveOccurred())
			drain(recorder)

			first := fetched()
			_, err = reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(drain(recorder)).To(BeEmpty())
			Expect(fetched().ResourceVersion).To(Equal(first.ResourceVersion))
		})
	})

	Context("when the package cannot be resolved", func() {
		It("reports a missing package tag without claiming the finalizer", func() {
			inst := newInstall()
			inst.Spec.Version = ">=2.0.0"
			setup(newDistrib(), inst)

			result, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(timing.ErrorRequeue))

			got := fetched()
			Expect(got.Status.Errors).To(Equal([]string{"package tag not found"}))
			Expect(got.Finalizers).To(BeEmpty())
			Expect(got.Status.Components).To(BeEmpty())
			Expect(drain(recorder)).To(Equal([]string{"Warning package tag not found package tag not found"}))

			err = c.Get(ctx, jobKey, &batchv1.Job{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})

		It("reports a missing distrib", func() {
			setup(newInstall())

			result, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(timing.ErrorRequeue))
			Expect(fetched().Status.Errors).To(Equal([]string{"distrib base not found"}))
		})

		It("rejects an invalid spec", func() {
			inst := newInstall()
			inst.Spec.Component = ""
			setup(newDistrib(), inst)

			_, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			cond := meta.FindStatusCondition(fetched().Status.Conditions, vynilv1alpha1.ConditionReady)
			Expect(cond).NotTo(BeNil())
			Expect(cond.Status).To(Equal(metav1.ConditionFalse))
			Expect(cond.Reason).To(Equal(string(controller.ReasonIllegalInstall)))
		})

		It("treats an unpublished image as a missing tag", func() {
			registry := &fakeRegistry{exists: false}
			reconciler.Registry = registry
			setup(newDistrib(), newInstall())

			_, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(registry.images).To(Equal([]string{"registry.example.com/core/demo:1.2.0"}))
			Expect(fetched().Status.Errors).To(Equal([]string{"package tag not found"}))
		})

		It("retries when the registry cannot be reached", func() {
			reconciler.Registry = &fakeRegistry{err: errors.New("dial tcp: connection refused")}
			setup(newDistrib(), newInstall())

			_, err := reconcile()
			Expect(err).To(HaveOccurred())
			Expect(controller.AsError(err).Reason).To(Equal(controller.ReasonRegistryCheck))
		})
	})

	Context("when the install is deleted", func() {
		It("deletes the job then the secret and releases the object", func() {
			setup(newDistrib(), newInstall())
			_, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			drain(recorder)

			Expect(c.Delete(ctx, fetched())).To(Succeed())
			result, err := reconcile()
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))

			Expect(drain(recorder)).To(Equal([]string{
				"Normal Deleted deleted Job demo-install-job for Install demo",
				"Normal Deleted deleted Secret demo-values for Install demo",
				"Normal Cleaned cleanup of demo done",
			}))
			Expect(apierrors.IsNotFound(c.Get(ctx, key, &vynilv1alpha1.Install{}))).To(BeTrue())
			Expect(apierrors.IsNotFound(c.Get(ctx, jobKey, &batchv1.Job{}))).To(BeTrue())
			Expect(apierrors.IsNotFound(c.Get(ctx, secretKey, &corev1.Secret{}))).To(BeTrue())
		})
	})
})
