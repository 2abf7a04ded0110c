package main

import (
	"fmt"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/palmsync/go-hotsync/pkg/transport/usb"
)

type metricCollector struct {
	m []prometheus.Metric
}

func (mc *metricCollector) Collect(c chan<- prometheus.Metric) {
	for _, m := range mc.m {
		c <- m
	}
}

func (mc *metricCollector) Describe(c chan<- *prometheus.Desc) {}

func outputMetrics(candidates []usb.Candidate) {
	var (
		mDeviceInfo = prometheus.NewDesc(
			"hotsync_usb_device_info",
			"Info metric for a USB device found under the HotSync bus root",
			[]string{"path", "vendor_id", "product_id", "name"}, nil,
		)
		mKnown = prometheus.NewDesc(
			"hotsync_usb_device_known",
			"Boolean: whether the device's (vid, pid) is in the built-in HotSync device table",
			[]string{"path"}, nil,
		)
		mStackNetSync = prometheus.NewDesc(
			"hotsync_usb_device_stack_netsync",
			"Boolean: whether the device's protocol stack tag is NetSync rather than PADP",
			[]string{"path"}, nil,
		)
	)

	mc := &metricCollector{}
	for _, c := range candidates {
		name := ""
		known := float64(0)
		netsync := float64(0)
		if c.Known {
			name = c.Info.Name
			known = 1
			if c.Info.Stack == usb.StackNetSync {
				netsync = 1
			}
		}
		mc.m = append(mc.m, prometheus.MustNewConstMetric(mDeviceInfo, prometheus.GaugeValue, 1,
			c.Path, fmt.Sprintf("%#04x", c.VendorID), fmt.Sprintf("%#04x", c.ProductID), name))
		mc.m = append(mc.m, prometheus.MustNewConstMetric(mKnown, prometheus.GaugeValue, known, c.Path))
		mc.m = append(mc.m, prometheus.MustNewConstMetric(mStackNetSync, prometheus.GaugeValue, netsync, c.Path))
	}

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(mc)

	mfs, err := reg.Gather()
	if err != nil {
		log.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			log.Fatalf("Failed to serialize metrics: %v", err)
		}
	}
}
