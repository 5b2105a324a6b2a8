package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/nsresolve/itercore"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:53", "address to listen on")
	netProto := flag.String("net", "udp", "network to listen on (udp or tcp)")
	cacheSize := flag.Int("cache-size", 4096, "maximum number of cache entries")
	disableV6 := flag.Bool("disable-v6-ns", false, "never query nameservers over IPv6")
	flag.Parse()

	cfg := resolver.DefaultConfig()
	cfg.CacheSize = *cacheSize
	cfg.DisableV6NS = *disableV6
	env := resolver.NewEnvironment(cfg)

	s := &server{env: env}
	dns.HandleFunc(".", s.handler)
	dnsServer := &dns.Server{
		Addr:         *addr,
		Net:          *netProto,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	if err := dnsServer.ListenAndServe(); err != nil {
		fmt.Println(err)
	}
}
